package document

import (
	"fmt"
	"strings"
)

// Path addresses a nested field, e.g. Owners.PrimaryOwner.PersonId.
type Path []string

// ParsePath splits a dotted field path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// String returns the dotted form of the path.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Get returns the value at path p.
func Get(doc Document, p Path) (any, bool) {
	var cur any = map[string]any(doc)
	for _, field := range p {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[field]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores v at path p, creating intermediate objects as needed.
func Set(doc Document, p Path, v any) error {
	if len(p) == 0 {
		return fmt.Errorf("empty path")
	}
	parent, err := walkCreate(doc, p[:len(p)-1])
	if err != nil {
		return err
	}
	parent[p[len(p)-1]] = v
	return nil
}

// Append adds v to the list at path p. A missing or null field becomes a
// one-element list.
func Append(doc Document, p Path, v any) error {
	if len(p) == 0 {
		return fmt.Errorf("empty path")
	}
	parent, err := walkCreate(doc, p[:len(p)-1])
	if err != nil {
		return err
	}

	field := p[len(p)-1]
	switch existing := parent[field].(type) {
	case nil:
		parent[field] = []any{v}
	case []any:
		parent[field] = append(existing, v)
	default:
		return fmt.Errorf("field %s is %T, not a list", p, existing)
	}
	return nil
}

func walkCreate(doc Document, p Path) (map[string]any, error) {
	cur := map[string]any(doc)
	for i, field := range p {
		next, ok := cur[field]
		if !ok || next == nil {
			child := map[string]any{}
			cur[field] = child
			cur = child
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return nil, fmt.Errorf("field %s is %T, not an object", p[:i+1], next)
		}
		cur = m
	}
	return cur, nil
}
