package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/registration"
)

//go:embed schema/fixtures.cue
var fixturesSchema string

// FixtureError is one problem found while checking a fixtures file.
type FixtureError struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e FixtureError) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return e.Message
}

// FixtureLoader reads seed data files. CUE files are checked against the
// embedded #Fixtures schema before decoding.
type FixtureLoader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewFixtureLoader compiles the fixtures schema.
func NewFixtureLoader() (*FixtureLoader, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(fixturesSchema, cue.Filename("fixtures.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile fixtures schema: %w", err)
	}
	return &FixtureLoader{
		ctx:    ctx,
		schema: schema.LookupPath(cue.ParsePath("#Fixtures")),
	}, nil
}

// LoadFixtures reads fixtures from a .cue, .yaml, .yml or .json file.
func LoadFixtures(path string) (registration.Fixtures, error) {
	loader, err := NewFixtureLoader()
	if err != nil {
		return registration.Fixtures{}, err
	}
	return loader.Load(path)
}

// Load reads fixtures from path, choosing the format by extension.
func (fl *FixtureLoader) Load(path string) (registration.Fixtures, error) {
	var f registration.Fixtures

	content, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("failed to read fixtures %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		f, err = fl.ParseCUE(path, string(content))
	case ".yaml", ".yml", ".json":
		err = yaml.Unmarshal(content, &f)
		if err != nil {
			err = ledger.NewValidationError(fmt.Sprintf("failed to parse fixtures %s", path), err)
		}
	default:
		err = ledger.NewValidationError(fmt.Sprintf("unsupported fixtures format %q", filepath.Ext(path)), nil)
	}
	if err != nil {
		return registration.Fixtures{}, err
	}

	if err := f.Validate(); err != nil {
		return registration.Fixtures{}, err
	}
	return f, nil
}

// ParseCUE unifies CUE source with the #Fixtures schema and decodes it.
// The filename is only used in error positions.
func (fl *FixtureLoader) ParseCUE(filename, source string) (registration.Fixtures, error) {
	var f registration.Fixtures

	val := fl.ctx.CompileString(source, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return f, fixtureErrors(filename, err)
	}

	unified := fl.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return f, fixtureErrors(filename, err)
	}
	if err := unified.Decode(&f); err != nil {
		return f, ledger.NewValidationError(fmt.Sprintf("failed to decode fixtures %s", filename), err)
	}
	return f, nil
}

// fixtureErrors flattens CUE errors into one validation error that lists
// every position.
func fixtureErrors(filename string, err error) error {
	var problems []FixtureError
	for _, e := range cueerrors.Errors(err) {
		p := FixtureError{Message: cueerrors.Details(e, nil)}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			p.File = pos[0].Filename()
			p.Line = pos[0].Line()
			p.Column = pos[0].Column()
		}
		problems = append(problems, p)
	}

	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.String()
	}
	return ledger.NewValidationError(fmt.Sprintf("invalid fixtures %s", filename), err).
		WithDetail("problems", msgs)
}
