package migration

import (
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/objectstore/objectstoretest"
	"github.com/snd-ksa/docmigrate/internal/records"
	"github.com/snd-ksa/docmigrate/internal/records/recordstest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testCanonicalBase = "https://minio.example.com"
	testLegacyBase    = "http://legacy.example"
)

var photoBytes = []byte("\xff\xd8\xff\xe0 photo bytes")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CanonicalBaseURL = testCanonicalBase
	cfg.LegacyStoreBaseURL = testLegacyBase
	cfg.Workers = 2
	cfg.RetryBackoff = 0
	return cfg
}

func legacyURL(bucket, key string) string {
	return testLegacyBase + "/storage/v1/object/public/" + bucket + "/" + key
}

func canonicalURL(bucket, key string) string {
	return testCanonicalBase + "/" + bucket + "/" + key
}

// employeeDoc is an employee document owned by EMP-0042 (surrogate id 7).
func employeeDoc(id int64, fileName, path string) records.Document {
	return records.Document{
		Table:            records.EmployeeDocuments,
		ID:               id,
		FileName:         fileName,
		FilePath:         path,
		OwnerID:          7,
		OwnerKind:        records.OwnerEmployee,
		OwnerBusinessKey: "EMP-0042",
	}
}

type fixture struct {
	cfg     Config
	repo    *recordstest.Repository
	target  *objectstoretest.Store
	legacy  *objectstoretest.Store
	fetcher *objectstoretest.Fetcher
}

func newFixture(docs ...records.Document) *fixture {
	return &fixture{
		cfg:     testConfig(),
		repo:    recordstest.New(docs...),
		target:  objectstoretest.New(),
		legacy:  objectstoretest.New(),
		fetcher: objectstoretest.NewFetcher(),
	}
}

func (f *fixture) stores() Stores {
	return Stores{Target: f.target, Legacy: f.legacy, Fetcher: f.fetcher}
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func (f *fixture) executor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	x, err := NewExecutor(f.cfg, f.repo, f.stores(), append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return x
}

func (f *fixture) auditor(t *testing.T) *Auditor {
	t.Helper()
	a, err := NewAuditor(f.cfg, f.repo, f.stores(), WithLogger(quietLogger()))
	require.NoError(t, err)
	return a
}

func (f *fixture) duplicates(t *testing.T) *DuplicateResolver {
	t.Helper()
	d, err := NewDuplicateResolver(f.cfg, f.repo, f.stores(), WithLogger(quietLogger()))
	require.NoError(t, err)
	return d
}

func (f *fixture) candidates(t *testing.T) []Candidate {
	t.Helper()
	var all []Candidate
	for _, table := range records.AllTables() {
		docs, err := f.repo.ListAll(t.Context(), table)
		require.NoError(t, err)
		all = append(all, docs...)
	}
	return all
}

// recordingObserver collects observed outcomes.
type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) ObserveOutcome(operation, table, status string, _ int64, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, operation+" "+table+" "+status)
}

func (r *recordingObserver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}
