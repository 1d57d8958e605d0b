package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/regledger/regledger/pkg/document"
	"github.com/regledger/regledger/pkg/ledger/partiql"
)

// scope resolves statement paths against a FROM clause.
type scope struct {
	table string
	alias string
	byVar string
}

// resolve maps a statement path to a document path. A path naming the BY
// variable resolves to the document id. A path naming only the alias
// resolves to the whole document.
func (s scope) resolve(path []string) (p document.Path, byID bool, err error) {
	if len(path) == 0 {
		return nil, false, fmt.Errorf("empty path")
	}
	if s.byVar != "" && path[0] == s.byVar {
		if len(path) != 1 {
			return nil, false, fmt.Errorf("document id %s has no fields", s.byVar)
		}
		return nil, true, nil
	}
	switch {
	case s.alias != "" && path[0] == s.alias:
		path = path[1:]
	case s.alias == "" && path[0] == s.table:
		path = path[1:]
	}
	return document.Path(path), false, nil
}

func bindOperand(op partiql.Operand, params []any) any {
	if op.IsParam {
		return params[op.Param]
	}
	return op.Literal
}

func (t *Txn) bindConditions(s scope, where []partiql.Condition, params []any) ([]condition, error) {
	conds := make([]condition, 0, len(where))
	for _, w := range where {
		p, byID, err := s.resolve(w.Path)
		if err != nil {
			return nil, NewStatementError("invalid condition", err)
		}
		if !byID && len(p) == 0 {
			return nil, NewStatementError("cannot compare a whole document", nil)
		}
		conds = append(conds, condition{path: p, value: bindOperand(w.Value, params), byID: byID})
	}
	return conds, nil
}

// pushdown reports whether a condition can be evaluated by SQLite. Every
// condition is re-checked in Go, so this only narrows the scan.
func pushdown(c condition) bool {
	switch c.value.(type) {
	case string, int64, float64:
	default:
		return false
	}
	if c.byID {
		_, ok := c.value.(string)
		return ok
	}
	for _, seg := range c.path {
		if !ValidIdentifier(seg) {
			return false
		}
	}
	return true
}

func jsonPath(p document.Path) string {
	return "$." + strings.Join(p, ".")
}

// currentQuery selects the latest revision of each document as of snapshot.
// The json_extract(data, ...) form matches the expression indexes created by
// CREATE INDEX.
func currentQuery(table string, snapshot int64, conds []condition) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT doc_id, version, data, committed_at, txn_id FROM revisions
WHERE table_name = ? AND commit_seq <= ?
AND NOT EXISTS (
	SELECT 1 FROM revisions AS newer
	WHERE newer.table_name = revisions.table_name
	AND newer.doc_id = revisions.doc_id
	AND newer.commit_seq > revisions.commit_seq
	AND newer.commit_seq <= ?
)`)
	args := appendPushdown(&sb, []any{table, snapshot, snapshot}, conds)
	sb.WriteString("\nORDER BY doc_id")
	return sb.String(), args
}

func (t *Txn) execSelect(ctx context.Context, s *partiql.Select, params []any) (*Result, error) {
	sc := scope{table: s.Source.Table, alias: s.Source.Alias, byVar: s.Source.ByVar}
	conds, err := t.bindConditions(sc, s.Where, params)
	if err != nil {
		return nil, err
	}

	revs, err := t.current(ctx, s.Source.Table, conds)
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(revs))
	for _, rev := range revs {
		out, err := project(s, sc, rev.id, rev.doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, out)
	}
	return newResult(docs), nil
}

// project builds the output document of a SELECT for one source document.
func project(s *partiql.Select, sc scope, id string, doc document.Document) (document.Document, error) {
	if s.AllFields {
		return document.Clone(doc), nil
	}

	out := document.Document{}
	for _, item := range s.Items {
		p, byID, err := sc.resolve(item.Path)
		if err != nil {
			return nil, NewStatementError("invalid projection", err)
		}

		name := item.Alias
		if name == "" {
			name = item.Path[len(item.Path)-1]
		}

		switch {
		case byID:
			out[name] = id
		case item.Star:
			v, ok := document.Get(doc, p)
			if !ok {
				continue
			}
			if m, ok := document.AsMap(v); ok {
				for k, field := range m {
					out[k] = document.CloneValue(field)
				}
			}
		default:
			v, ok := document.Get(doc, p)
			if !ok {
				continue
			}
			out[name] = document.CloneValue(v)
		}
	}
	return out, nil
}

func (t *Txn) execInsert(ctx context.Context, s *partiql.Insert, params []any) (*Result, error) {
	if err := t.requireTable(ctx, s.Table); err != nil {
		return nil, err
	}

	var values []any
	switch v := bindOperand(s.Value, params).(type) {
	case map[string]any:
		values = []any{v}
	case []any:
		values = v
	default:
		return nil, NewStatementError("INSERT requires a document or a list of documents", nil).
			WithCode(ErrCodeInvalidParameter).
			WithTable(s.Table)
	}

	docs := make([]document.Document, 0, len(values))
	for _, v := range values {
		m, ok := document.AsMap(v)
		if !ok {
			return nil, NewStatementError("INSERT list element is not a document", nil).
				WithCode(ErrCodeInvalidParameter).
				WithTable(s.Table)
		}
		id := uuid.NewString()
		t.stage(docKey{table: s.Table, id: id}, document.Clone(document.Document(m)), -1)
		docs = append(docs, document.Document{"documentId": id})
	}
	return newResult(docs), nil
}

// mutate applies fn to a copy of every document matching where and stages
// the results.
func (t *Txn) mutate(ctx context.Context, table, alias string, where []partiql.Condition, params []any,
	fn func(doc document.Document) error) (*Result, error) {
	sc := scope{table: table, alias: alias}
	conds, err := t.bindConditions(sc, where, params)
	if err != nil {
		return nil, err
	}

	revs, err := t.current(ctx, table, conds)
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(revs))
	for _, rev := range revs {
		doc := document.Clone(rev.doc)
		if err := fn(doc); err != nil {
			return nil, NewStatementError("failed to modify document", err).
				WithTable(table).
				WithDocumentID(rev.id)
		}
		t.stage(docKey{table: table, id: rev.id}, doc, rev.version)
		docs = append(docs, document.Document{"documentId": rev.id})
	}
	return newResult(docs), nil
}

func (t *Txn) execUpdate(ctx context.Context, s *partiql.Update, params []any) (*Result, error) {
	sc := scope{table: s.Table, alias: s.Alias}
	paths := make([]document.Path, len(s.Set))
	for i, a := range s.Set {
		p, byID, err := sc.resolve(a.Path)
		if err != nil || byID || len(p) == 0 {
			return nil, NewStatementError(fmt.Sprintf("cannot assign to %s", strings.Join(a.Path, ".")), err)
		}
		paths[i] = p
	}

	return t.mutate(ctx, s.Table, s.Alias, s.Where, params, func(doc document.Document) error {
		for i, a := range s.Set {
			if err := document.Set(doc, paths[i], document.CloneValue(bindOperand(a.Value, params))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (t *Txn) execNestedInsert(ctx context.Context, s *partiql.NestedInsert, params []any) (*Result, error) {
	sc := scope{table: s.Table, alias: s.Alias}
	target, byID, err := sc.resolve(s.Target)
	if err != nil || byID || len(target) == 0 {
		return nil, NewStatementError(fmt.Sprintf("cannot insert into %s", strings.Join(s.Target, ".")), err)
	}

	return t.mutate(ctx, s.Table, s.Alias, s.Where, params, func(doc document.Document) error {
		return document.Append(doc, target, document.CloneValue(bindOperand(s.Value, params)))
	})
}

func (t *Txn) execCreateTable(ctx context.Context, s *partiql.CreateTable) (*Result, error) {
	if !ValidIdentifier(s.Table) {
		return nil, NewStatementError("invalid table name", nil).WithTable(s.Table)
	}

	exists, err := t.tableExists(ctx, s.Table)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, NewStatementError("table already exists", nil).
			WithCode(ErrCodeTableExists).
			WithTable(s.Table)
	}

	t.newTables[s.Table] = true
	t.tableOrder = append(t.tableOrder, s.Table)
	return newResult([]document.Document{{"tableName": s.Table}}), nil
}

func (t *Txn) execCreateIndex(ctx context.Context, s *partiql.CreateIndex) (*Result, error) {
	if err := t.requireTable(ctx, s.Table); err != nil {
		return nil, err
	}
	if !ValidIdentifier(s.Attribute) {
		return nil, NewStatementError("invalid index attribute", nil).WithTable(s.Table)
	}

	result := newResult([]document.Document{{"tableName": s.Table, "attribute": s.Attribute}})
	for _, idx := range t.newIndexes {
		if idx.table == s.Table && idx.attribute == s.Attribute {
			return result, nil
		}
	}

	var n int
	err := t.ledger.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_indexes WHERE table_name = ? AND attribute = ?`,
		s.Table, s.Attribute).Scan(&n)
	if err != nil {
		return nil, NewConnectivityError("failed to look up index", err).WithTable(s.Table)
	}
	if n == 0 {
		t.newIndexes = append(t.newIndexes, indexSpec{table: s.Table, attribute: s.Attribute})
	}
	return result, nil
}

// historyRecord is the document a history source yields for one revision.
func historyRecord(rev revision) document.Document {
	return document.Document{
		"data": map[string]any(document.Clone(rev.doc)),
		"metadata": map[string]any{
			"id":      rev.id,
			"version": rev.version,
			"txTime":  rev.committedAt.Format(time.RFC3339Nano),
			"txId":    rev.txnID,
		},
	}
}

func parseTimeBound(v any) (int64, bool, error) {
	switch b := v.(type) {
	case nil:
		return 0, false, nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, b)
		if err != nil {
			return 0, false, err
		}
		return ts.UnixNano(), true, nil
	default:
		return 0, false, fmt.Errorf("time bound must be an RFC 3339 string, got %T", v)
	}
}

// execHistory lists committed revisions of a table in document then version
// order. History reads never conflict, so nothing is recorded for commit.
func (t *Txn) execHistory(ctx context.Context, s *partiql.Select, params []any) (*Result, error) {
	table := s.Source.Table
	if err := t.requireTable(ctx, table); err != nil {
		return nil, err
	}

	sc := scope{table: "history", alias: s.Source.Alias}
	conds, err := t.bindConditions(sc, s.Where, params)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`SELECT doc_id, version, data, committed_at, txn_id FROM revisions
WHERE table_name = ? AND commit_seq <= ?`)
	args := []any{table, t.snapshot}

	bounds := []string{"\nAND committed_at >= ?", "\nAND committed_at <= ?"}
	for i, arg := range s.Source.HistoryArgs {
		ts, ok, err := parseTimeBound(bindOperand(arg, params))
		if err != nil {
			return nil, NewStatementError("invalid history time bound", err).
				WithCode(ErrCodeInvalidParameter).
				WithTable(table)
		}
		if ok {
			sb.WriteString(bounds[i])
			args = append(args, ts)
		}
	}

	for _, c := range conds {
		if len(c.path) == 2 && c.path[0] == "metadata" && c.path[1] == "id" {
			if id, ok := c.value.(string); ok {
				sb.WriteString("\nAND doc_id = ?")
				args = append(args, id)
			}
		}
	}
	sb.WriteString("\nORDER BY doc_id, version")

	revs, err := queryRevisions(ctx, t.ledger.db, sb.String(), args...)
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(revs))
	for _, rev := range revs {
		record := historyRecord(rev)
		if !matches(rev.id, record, conds) {
			continue
		}
		out, err := project(s, sc, rev.id, record)
		if err != nil {
			return nil, err
		}
		docs = append(docs, out)
	}
	return newResult(docs), nil
}
