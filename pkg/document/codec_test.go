package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type owner struct {
	PersonId string `json:"PersonId"`
}

type registration struct {
	VIN    string  `json:"VIN"`
	Amount float64 `json:"PendingPenaltyTicketAmount"`
	Year   int     `json:"Year"`
	Owners struct {
		PrimaryOwner    owner   `json:"PrimaryOwner"`
		SecondaryOwners []owner `json:"SecondaryOwners"`
	} `json:"Owners"`
}

func TestMarshalNormalizesNumbers(t *testing.T) {
	reg := registration{VIN: "V1", Amount: 90.25, Year: 2011}
	doc, err := MarshalDocument(reg)
	require.NoError(t, err)

	assert.Equal(t, "V1", doc["VIN"])
	assert.Equal(t, int64(2011), doc["Year"])
	assert.Equal(t, 90.25, doc["PendingPenaltyTicketAmount"])

	owners, ok := doc["Owners"].(map[string]any)
	require.True(t, ok)
	assert.Nil(t, owners["SecondaryOwners"])
}

func TestMarshalDocumentRejectsScalars(t *testing.T) {
	_, err := MarshalDocument("not a document")
	assert.Error(t, err)
}

func TestUnmarshalIntoTypedRecord(t *testing.T) {
	doc := Document{
		"VIN":  "V2",
		"Year": int64(2019),
		"Owners": map[string]any{
			"PrimaryOwner":    map[string]any{"PersonId": "p-1"},
			"SecondaryOwners": []any{map[string]any{"PersonId": "p-2"}},
		},
	}

	var reg registration
	require.NoError(t, Unmarshal(doc, &reg))
	assert.Equal(t, "V2", reg.VIN)
	assert.Equal(t, 2019, reg.Year)
	assert.Equal(t, "p-1", reg.Owners.PrimaryOwner.PersonId)
	require.Len(t, reg.Owners.SecondaryOwners, 1)
	assert.Equal(t, "p-2", reg.Owners.SecondaryOwners[0].PersonId)
}

func TestEncodeDecode(t *testing.T) {
	doc := Document{"GovId": "LEWISR261LL", "Count": int64(3), "Nested": map[string]any{"ok": true}}
	raw, err := Encode(doc)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, Equal(doc, decoded))
}

func TestMarshalTimeAsString(t *testing.T) {
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	val, err := Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02T03:04:05Z", val)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int and float", int64(3), 3.0, true},
		{"different numbers", int64(3), int64(4), false},
		{"large integers", int64(1<<53 + 1), int64(1 << 53), false},
		{"int and int64", 7, int64(7), true},
		{"string and number", "3", int64(3), false},
		{"nil", nil, nil, true},
		{"nil and string", nil, "", false},
		{"document and map", Document{"a": "b"}, map[string]any{"a": "b"}, true},
		{"lists", []any{"a", int64(1)}, []any{"a", 1.0}, true},
		{"list length", []any{"a"}, []any{"a", "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{"Owners": map[string]any{"SecondaryOwners": []any{"a"}}}
	cp := Clone(doc)
	require.NoError(t, Append(cp, ParsePath("Owners.SecondaryOwners"), "b"))

	orig, _ := Get(doc, ParsePath("Owners.SecondaryOwners"))
	assert.Len(t, orig, 1)
}
