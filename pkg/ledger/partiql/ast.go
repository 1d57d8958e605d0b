package partiql

// Statement is a parsed ledger statement.
type Statement interface {
	statementNode()
}

// Operand is a literal or a positional parameter on the right-hand side of
// a condition or assignment.
type Operand struct {
	// Param is the zero-based parameter position when IsParam is set.
	Param   int
	IsParam bool
	Literal any
}

// Condition is an equality predicate `path = operand`.
type Condition struct {
	Path  []string
	Value Operand
}

// SelectItem is one projected path. Star marks `x.*`.
type SelectItem struct {
	Path  []string
	Star  bool
	Alias string
}

// Source is the FROM clause of a SELECT.
type Source struct {
	Table string
	Alias string
	ByVar string

	// History selects revisions instead of current documents. HistoryArgs
	// holds the optional start and end time bounds.
	History     bool
	HistoryArgs []Operand
}

// Select reads documents. AllFields is set for `SELECT *`.
type Select struct {
	AllFields bool
	Items     []SelectItem
	Source    Source
	Where     []Condition
}

// Insert adds one or more documents to a table.
type Insert struct {
	Table string
	Value Operand
}

// Assignment is one `SET path = operand` clause.
type Assignment struct {
	Path  []string
	Value Operand
}

// Update modifies fields of every matching document.
type Update struct {
	Table string
	Alias string
	Set   []Assignment
	Where []Condition
}

// NestedInsert appends a value to a list inside every matching document.
type NestedInsert struct {
	Table  string
	Alias  string
	Where  []Condition
	Target []string
	Value  Operand
}

// CreateTable creates a ledger table.
type CreateTable struct {
	Table string
}

// CreateIndex creates an index on a top-level attribute.
type CreateIndex struct {
	Table     string
	Attribute string
}

func (*Select) statementNode()       {}
func (*Insert) statementNode()       {}
func (*Update) statementNode()       {}
func (*NestedInsert) statementNode() {}
func (*CreateTable) statementNode()  {}
func (*CreateIndex) statementNode()  {}
