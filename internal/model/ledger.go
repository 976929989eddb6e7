package model

import "time"

// Ledger status values shared with the analysis consumer process. These are
// persisted as-is, so renaming them is a wire-format change.
const (
	LedgerStatusPending   = "PENDING"
	LedgerStatusRunning   = "RUNNING"
	LedgerStatusCompleted = "COMPLETED"
	LedgerStatusFailed    = "FAILED"
	LedgerStatusCancelled = "CANCELLED"
)

// LedgerRecord links a collection job to its downstream analysis job. The
// record file is shared between the collection and analysis processes and
// must only be touched under the ledger's advisory lock.
type LedgerRecord struct {
	RequestID            string    `json:"requestId"`
	BrandID              string    `json:"brandId"`
	DataCollectionID     string    `json:"dataCollectionId,omitempty"`
	DataCollectionStatus string    `json:"dataCollectionStatus"`
	AnalysisEngineID     string    `json:"analysisEngineId,omitempty"`
	AnalysisEngineStatus string    `json:"analysisEngineStatus,omitempty"`
	LastUpdated          time.Time `json:"lastUpdated"`
}
