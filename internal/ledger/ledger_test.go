package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandscope/intel-cli/internal/model"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(filepath.Join(t.TempDir(), "shared", "ledger.json"))
	l.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	return l
}

func TestCreateAndGet(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Create("req-1", "acme"))

	rec, err := l.Get("req-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "acme", rec.BrandID)
	assert.Equal(t, model.LedgerStatusPending, rec.DataCollectionStatus)
	assert.Empty(t, rec.DataCollectionID)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), rec.LastUpdated)
}

func TestCreateDuplicateFails(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Create("req-1", "acme"))
	assert.Error(t, l.Create("req-1", "acme"))
}

func TestGetAbsentReturnsNil(t *testing.T) {
	l := newTestLedger(t)

	rec, err := l.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpdateCollection(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Create("req-1", "acme"))

	require.NoError(t, l.UpdateCollection("req-1", "job-1", model.LedgerStatusRunning))

	rec, err := l.Get("req-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", rec.DataCollectionID)
	assert.Equal(t, model.LedgerStatusRunning, rec.DataCollectionStatus)

	// An empty job id keeps the existing one.
	require.NoError(t, l.UpdateCollection("req-1", "", model.LedgerStatusCompleted))
	rec, err = l.Get("req-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", rec.DataCollectionID)
	assert.Equal(t, model.LedgerStatusCompleted, rec.DataCollectionStatus)
}

func TestUpdateAnalysis(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Create("req-1", "acme"))

	require.NoError(t, l.UpdateAnalysis("req-1", "an-1", model.LedgerStatusRunning))

	rec, err := l.Get("req-1")
	require.NoError(t, err)
	assert.Equal(t, "an-1", rec.AnalysisEngineID)
	assert.Equal(t, model.LedgerStatusRunning, rec.AnalysisEngineStatus)
}

func TestUpdateMissingRecord(t *testing.T) {
	l := newTestLedger(t)

	assert.Error(t, l.UpdateCollection("nope", "job-1", model.LedgerStatusRunning))
	assert.Error(t, l.UpdateAnalysis("nope", "an-1", model.LedgerStatusRunning))
}

func TestPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")

	first := New(path)
	require.NoError(t, first.Create("req-1", "acme"))
	require.NoError(t, first.UpdateCollection("req-1", "job-1", model.LedgerStatusCompleted))

	// A fresh handle, as the analysis process would open.
	second := New(path)
	rec, err := second.Get("req-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "job-1", rec.DataCollectionID)
	assert.Equal(t, model.LedgerStatusCompleted, rec.DataCollectionStatus)
}

func TestList(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Create("req-1", "acme"))
	require.NoError(t, l.Create("req-2", "globex"))

	records, err := l.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "req-1", records[0].RequestID)
	assert.Equal(t, "req-2", records[1].RequestID)
}

func TestFileFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")

	l := New(path)
	require.NoError(t, l.Create("req-1", "acme"))
	require.NoError(t, l.UpdateCollection("req-1", "job-1", model.LedgerStatusRunning))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Field names are part of the contract with the analysis process.
	var generic []map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Len(t, generic, 1)
	assert.Equal(t, "req-1", generic[0]["requestId"])
	assert.Equal(t, "acme", generic[0]["brandId"])
	assert.Equal(t, "job-1", generic[0]["dataCollectionId"])
	assert.Equal(t, model.LedgerStatusRunning, generic[0]["dataCollectionStatus"])
	assert.Contains(t, generic[0], "lastUpdated")
}

func TestConcurrentMutations(t *testing.T) {
	l := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			if err := l.Create("req-"+id, "brand-"+id); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	records, err := l.List()
	require.NoError(t, err)
	assert.Len(t, records, 8)
}
