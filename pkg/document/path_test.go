package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNested(t *testing.T) {
	doc := Document{"Owners": map[string]any{"PrimaryOwner": map[string]any{"PersonId": "p-1"}}}

	v, ok := Get(doc, ParsePath("Owners.PrimaryOwner.PersonId"))
	require.True(t, ok)
	assert.Equal(t, "p-1", v)

	_, ok = Get(doc, ParsePath("Owners.SecondaryOwners"))
	assert.False(t, ok)

	_, ok = Get(doc, ParsePath("Owners.PrimaryOwner.PersonId.Deeper"))
	assert.False(t, ok)
}

func TestSetCreatesIntermediateObjects(t *testing.T) {
	doc := Document{}
	require.NoError(t, Set(doc, ParsePath("Owners.PrimaryOwner.PersonId"), "p-9"))

	v, ok := Get(doc, ParsePath("Owners.PrimaryOwner.PersonId"))
	require.True(t, ok)
	assert.Equal(t, "p-9", v)
}

func TestSetThroughScalarFails(t *testing.T) {
	doc := Document{"Owners": "nobody"}
	assert.Error(t, Set(doc, ParsePath("Owners.PrimaryOwner"), "x"))
	assert.Error(t, Set(doc, nil, "x"))
}

func TestAppend(t *testing.T) {
	doc := Document{}
	p := ParsePath("Owners.SecondaryOwners")

	require.NoError(t, Append(doc, p, map[string]any{"PersonId": "a"}))
	require.NoError(t, Append(doc, p, map[string]any{"PersonId": "b"}))

	v, _ := Get(doc, p)
	assert.Len(t, v, 2)

	doc2 := Document{"Owners": map[string]any{"SecondaryOwners": "oops"}}
	assert.Error(t, Append(doc2, p, "c"))
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "a.b.c", ParsePath("a.b.c").String())
	assert.Nil(t, ParsePath(""))
}
