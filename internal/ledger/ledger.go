// Package ledger maintains the JSON record file shared with the analysis
// consumer process. Every read-modify-write cycle holds an advisory file
// lock for its full duration, so two processes never interleave writes.
package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"

	"github.com/brandscope/intel-cli/internal/model"
)

// Ledger is a handle on the shared record file. The flock serializes access
// across processes; it is a no-op on re-entry within a process, so an
// in-process mutex guards concurrent goroutines on the same handle.
type Ledger struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

// New creates a Ledger for the record file at path. The file and its parent
// directory are created lazily on first write.
func New(path string) *Ledger {
	return &Ledger{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
}

// Create appends a new record for requestID with collection status PENDING.
// It fails if a record with the same request id already exists.
func (l *Ledger) Create(requestID, brandID string) error {
	return l.mutate(func(records []model.LedgerRecord) ([]model.LedgerRecord, error) {
		for _, r := range records {
			if r.RequestID == requestID {
				return nil, eris.Errorf("ledger: record exists for request %s", requestID)
			}
		}
		return append(records, model.LedgerRecord{
			RequestID:            requestID,
			BrandID:              brandID,
			DataCollectionStatus: model.LedgerStatusPending,
			LastUpdated:          l.now().UTC(),
		}), nil
	})
}

// UpdateCollection sets the collection job id and status on the record.
func (l *Ledger) UpdateCollection(requestID, jobID, status string) error {
	return l.update(requestID, func(r *model.LedgerRecord) {
		if jobID != "" {
			r.DataCollectionID = jobID
		}
		r.DataCollectionStatus = status
	})
}

// UpdateAnalysis sets the analysis engine id and status on the record.
func (l *Ledger) UpdateAnalysis(requestID, analysisID, status string) error {
	return l.update(requestID, func(r *model.LedgerRecord) {
		if analysisID != "" {
			r.AnalysisEngineID = analysisID
		}
		r.AnalysisEngineStatus = status
	})
}

// Get returns the record for requestID, or nil if absent.
func (l *Ledger) Get(requestID string) (*model.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.lock.Lock(); err != nil {
		return nil, eris.Wrap(err, "ledger: acquire lock")
	}
	defer l.lock.Unlock()

	records, err := l.read()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].RequestID == requestID {
			return &records[i], nil
		}
	}
	return nil, nil
}

// List returns every record in the ledger.
func (l *Ledger) List() ([]model.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.lock.Lock(); err != nil {
		return nil, eris.Wrap(err, "ledger: acquire lock")
	}
	defer l.lock.Unlock()
	return l.read()
}

func (l *Ledger) update(requestID string, apply func(*model.LedgerRecord)) error {
	return l.mutate(func(records []model.LedgerRecord) ([]model.LedgerRecord, error) {
		for i := range records {
			if records[i].RequestID == requestID {
				apply(&records[i])
				records[i].LastUpdated = l.now().UTC()
				return records, nil
			}
		}
		return nil, eris.Errorf("ledger: no record for request %s", requestID)
	})
}

// mutate runs a read-modify-write cycle under the advisory lock.
func (l *Ledger) mutate(fn func([]model.LedgerRecord) ([]model.LedgerRecord, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.lock.Lock(); err != nil {
		return eris.Wrap(err, "ledger: acquire lock")
	}
	defer l.lock.Unlock()

	records, err := l.read()
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	return l.write(records)
}

func (l *Ledger) read() ([]model.LedgerRecord, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "ledger: read record file")
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []model.LedgerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "ledger: parse record file")
	}
	return records, nil
}

// write replaces the record file atomically via temp-file rename.
func (l *Ledger) write(records []model.LedgerRecord) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return eris.Wrap(err, "ledger: create directory")
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ledger: marshal records")
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.json")
	if err != nil {
		return eris.Wrap(err, "ledger: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "ledger: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "ledger: close temp file")
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "ledger: rename record file")
	}
	return nil
}
