package partiql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelect(t *testing.T) {
	parsed, err := Parse("SELECT p.FirstName AS name, p.Address.*, pid FROM Person AS p BY pid WHERE p.GovId = ? AND pid = 'x'")
	require.NoError(t, err)
	assert.Equal(t, 1, parsed.ParamCount)

	sel, ok := parsed.Statement.(*Select)
	require.True(t, ok)
	assert.False(t, sel.AllFields)
	assert.Equal(t, Source{Table: "Person", Alias: "p", ByVar: "pid"}, sel.Source)
	assert.Equal(t, []SelectItem{
		{Path: []string{"p", "FirstName"}, Alias: "name"},
		{Path: []string{"p", "Address"}, Star: true},
		{Path: []string{"pid"}},
	}, sel.Items)
	assert.Equal(t, []Condition{
		{Path: []string{"p", "GovId"}, Value: Operand{IsParam: true, Param: 0}},
		{Path: []string{"pid"}, Value: Operand{Literal: "x"}},
	}, sel.Where)
}

func TestParseSelectStarWithoutAlias(t *testing.T) {
	parsed, err := Parse("select * from Vehicle")
	require.NoError(t, err)
	sel := parsed.Statement.(*Select)
	assert.True(t, sel.AllFields)
	assert.Equal(t, "Vehicle", sel.Source.Table)
	assert.Empty(t, sel.Source.Alias)
	assert.Equal(t, 0, parsed.ParamCount)
}

func TestParseHistory(t *testing.T) {
	parsed, err := Parse("SELECT * FROM history(VehicleRegistration, ?, ?) AS h WHERE h.metadata.id = ?")
	require.NoError(t, err)
	assert.Equal(t, 3, parsed.ParamCount)

	sel := parsed.Statement.(*Select)
	assert.True(t, sel.Source.History)
	assert.Equal(t, "VehicleRegistration", sel.Source.Table)
	assert.Equal(t, "h", sel.Source.Alias)
	assert.Equal(t, []Operand{{IsParam: true, Param: 0}, {IsParam: true, Param: 1}}, sel.Source.HistoryArgs)
	assert.Equal(t, 2, sel.Where[0].Value.Param)

	_, err = Parse("SELECT * FROM history(Person, ?, ?, ?)")
	assert.Error(t, err)
}

func TestParseLiterals(t *testing.T) {
	parsed, err := Parse("SELECT * FROM T WHERE a = 1 AND b = 2.5 AND c = true AND d = null AND e = 'it''s'")
	require.NoError(t, err)
	sel := parsed.Statement.(*Select)
	require.Len(t, sel.Where, 5)
	assert.Equal(t, int64(1), sel.Where[0].Value.Literal)
	assert.Equal(t, 2.5, sel.Where[1].Value.Literal)
	assert.Equal(t, true, sel.Where[2].Value.Literal)
	assert.Nil(t, sel.Where[3].Value.Literal)
	assert.Equal(t, "it's", sel.Where[4].Value.Literal)
}

func TestParseInsert(t *testing.T) {
	parsed, err := Parse("INSERT INTO Person ?")
	require.NoError(t, err)
	assert.Equal(t, &Insert{Table: "Person", Value: Operand{IsParam: true}}, parsed.Statement)
	assert.Equal(t, 1, parsed.ParamCount)
}

func TestParseUpdate(t *testing.T) {
	parsed, err := Parse("UPDATE VehicleRegistration AS r SET r.Owners.PrimaryOwner.PersonId = ?, r.City = 'Kent' WHERE r.VIN = ?")
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.ParamCount)
	assert.Equal(t, &Update{
		Table: "VehicleRegistration",
		Alias: "r",
		Set: []Assignment{
			{Path: []string{"r", "Owners", "PrimaryOwner", "PersonId"}, Value: Operand{IsParam: true, Param: 0}},
			{Path: []string{"r", "City"}, Value: Operand{Literal: "Kent"}},
		},
		Where: []Condition{{Path: []string{"r", "VIN"}, Value: Operand{IsParam: true, Param: 1}}},
	}, parsed.Statement)
}

func TestParseNestedInsert(t *testing.T) {
	parsed, err := Parse("FROM VehicleRegistration AS v WHERE v.VIN = ? INSERT INTO v.Owners.SecondaryOwners VALUE ?")
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.ParamCount)
	assert.Equal(t, &NestedInsert{
		Table:  "VehicleRegistration",
		Alias:  "v",
		Where:  []Condition{{Path: []string{"v", "VIN"}, Value: Operand{IsParam: true, Param: 0}}},
		Target: []string{"v", "Owners", "SecondaryOwners"},
		Value:  Operand{IsParam: true, Param: 1},
	}, parsed.Statement)
}

func TestParseCreate(t *testing.T) {
	parsed, err := Parse("CREATE TABLE Person")
	require.NoError(t, err)
	assert.Equal(t, &CreateTable{Table: "Person"}, parsed.Statement)

	parsed, err = Parse("create index on Person (GovId)")
	require.NoError(t, err)
	assert.Equal(t, &CreateIndex{Table: "Person", Attribute: "GovId"}, parsed.Statement)
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"DELETE FROM Person",
		"SELECT FROM Person",
		"SELECT * FROM Person WHERE",
		"SELECT * FROM Person WHERE a > 1",
		"INSERT INTO Person",
		"UPDATE Person WHERE a = ?",
		"CREATE INDEX ON Person GovId",
		"SELECT * FROM Person extra tokens",
		"SELECT * FROM Person WHERE a = 'unterminated",
	}
	for _, stmt := range tests {
		t.Run(stmt, func(t *testing.T) {
			_, err := Parse(stmt)
			require.Error(t, err)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}
