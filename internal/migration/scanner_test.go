package migration

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/records"
)

func TestScanner_CollectIsStableAndReadOnly(t *testing.T) {
	repo := statusRepo()
	repo.Put(records.Document{
		Table: records.EquipmentDocuments, ID: 5, FileName: "m.pdf",
		FilePath: "https://supabasekong.example/storage/v1/object/public/equipment-documents/m.pdf",
	})

	candidates, err := NewScanner(testConfig(), repo).Collect(t.Context(), nil)
	require.NoError(t, err)

	var refs []string
	for _, c := range candidates {
		refs = append(refs, c.Ref())
	}
	assert.Equal(t, []string{
		"employee_documents#1",
		"employee_documents#4",
		"equipment_documents#5",
	}, refs)
	assert.Zero(t, repo.Updates())
}

func TestScanner_CustomPatterns(t *testing.T) {
	candidates, err := NewScanner(testConfig(), statusRepo()).
		Collect(t.Context(), []records.Pattern{{Contains: "old.example.com"}})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(4), candidates[0].ID)
}

func TestScanner_TableFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Tables = []records.Table{records.Media}

	candidates, err := NewScanner(cfg, statusRepo()).Collect(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestScanner_RepositoryErrorPropagates(t *testing.T) {
	repo := statusRepo()
	repo.FailList(errors.NewStd("connection lost"))

	_, err := NewScanner(testConfig(), repo).Collect(t.Context(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestScanner_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	out, errc := NewScanner(testConfig(), statusRepo()).Scan(ctx, nil)

	<-out
	cancel()
	for range out {
	}
	err := <-errc
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestScanner_Inventory(t *testing.T) {
	repo := statusRepo()
	unresolved := employeeDoc(6, "z.pdf", "http://old.example.com/z.pdf")
	unresolved.OwnerBusinessKey = ""
	repo.Put(unresolved)

	cfg := testConfig()
	inv, err := NewScanner(cfg, repo).Inventory(t.Context(), NewResolver(NewClassifier(cfg)))
	require.NoError(t, err)

	assert.Equal(t, 3, inv.Total)
	assert.Equal(t, 3, inv.Counts[records.EmployeeDocuments])
	assert.Zero(t, inv.Counts[records.Media])

	require.Len(t, inv.Items, 3)
	assert.Equal(t, ClassLegacyStore, inv.Items[0].Class)
	assert.Equal(t, canonicalURL(photoBucket, "employee-42/a.pdf"), inv.Items[0].Canonical)
	assert.Equal(t, ClassLegacyHTTP, inv.Items[1].Class)
	assert.NotEmpty(t, inv.Items[2].Problem)

	var buf bytes.Buffer
	require.NoError(t, inv.Write(&buf, FormatText))
	assert.Contains(t, buf.String(), "Found 3 candidates")
	assert.Contains(t, buf.String(), "employee_documents: 3")
}
