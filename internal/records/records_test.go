package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable(t *testing.T) {
	tbl, err := ParseTable(" Employee_Documents ")
	require.NoError(t, err)
	assert.Equal(t, EmployeeDocuments, tbl)

	_, err = ParseTable("users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "employee_documents, equipment_documents, media")
}

func TestSelectTables(t *testing.T) {
	all, err := SelectTables("")
	require.NoError(t, err)
	assert.Equal(t, AllTables(), all)

	one, err := SelectTables("media")
	require.NoError(t, err)
	assert.Equal(t, []Table{Media}, one)

	_, err = SelectTables("nope")
	require.Error(t, err)
}

func TestPatternMatches(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		path    string
		want    bool
	}{
		{"prefix", Pattern{Prefix: "http://"}, "http://a/b.pdf", true},
		{"prefix miss", Pattern{Prefix: "http://"}, "https://a/b.pdf", false},
		{"contains", Pattern{Contains: "supabasekong."}, "https://supabasekong.x/y", true},
		{"both", Pattern{Prefix: "https://", Contains: "kong."}, "https://kong.x", true},
		{"both miss", Pattern{Prefix: "http://", Contains: "kong."}, "https://kong.x", false},
		{"empty pattern", Pattern{}, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pattern.Matches(tt.path))
		})
	}
}

func TestOwnerKindFor(t *testing.T) {
	assert.Equal(t, OwnerEmployee, ownerKindFor(EmployeeDocuments, ""))
	assert.Equal(t, OwnerEquipment, ownerKindFor(EquipmentDocuments, "ignored"))
	assert.Equal(t, OwnerEmployee, ownerKindFor(Media, `App\Models\Employee`))
	assert.Equal(t, OwnerEquipment, ownerKindFor(Media, "Equipment"))
	assert.Equal(t, "rental", ownerKindFor(Media, "models.Rental"))
	assert.Empty(t, ownerKindFor(Media, ""))
}

func TestDocumentRef(t *testing.T) {
	assert.Equal(t, "media#7", Document{Table: Media, ID: 7}.Ref())
}
