// Package model holds the core domain types for brand signal collection.
package model

import (
	"slices"
	"time"
)

// SourceKind identifies one of the fixed signal categories.
type SourceKind string

const (
	SourceNews            SourceKind = "news"
	SourceSocialMedia     SourceKind = "social_media"
	SourceEmployerReviews SourceKind = "employer_reviews"
	SourceWebsite         SourceKind = "website"
)

// AllSources is the full source catalog, used when a request omits sources.
func AllSources() []SourceKind {
	return []SourceKind{SourceNews, SourceSocialMedia, SourceEmployerReviews, SourceWebsite}
}

// ValidSource reports whether k names a known source kind.
func ValidSource(k SourceKind) bool {
	switch k {
	case SourceNews, SourceSocialMedia, SourceEmployerReviews, SourceWebsite:
		return true
	}
	return false
}

// JobStatus represents the current state of a collection job.
type JobStatus string

const (
	JobStatusStarted    JobStatus = "started"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CollectRequest is the logical job-submission contract consumed from the
// HTTP layer and the CLI.
type CollectRequest struct {
	BrandID      string       `json:"brand_id"`
	CompetitorID string       `json:"competitor_id"`
	AreaID       string       `json:"area_id"`
	Sources      []SourceKind `json:"sources,omitempty"`
	RequestID    string       `json:"request_id,omitempty"`
}

// CollectionJob tracks per-source completion for one brand/competitor pair.
//
// Invariants maintained by the job manager: CompletedSources and
// RemainingSources are disjoint and together equal RequestedSources while
// the job is not terminal; RemainingSources is empty iff the job completed.
type CollectionJob struct {
	ID               string       `json:"id"`
	BrandID          string       `json:"brand_id"`
	CompetitorID     string       `json:"competitor_id"`
	AreaID           string       `json:"area_id"`
	RequestID        string       `json:"request_id,omitempty"`
	RequestedSources []SourceKind `json:"requested_sources"`
	CompletedSources []SourceKind `json:"completed_sources"`
	RemainingSources []SourceKind `json:"remaining_sources"`
	Status           JobStatus    `json:"status"`
	Progress         int          `json:"progress"`
	CurrentStep      string       `json:"current_step,omitempty"`
	Error            string       `json:"error,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// HasCompleted reports whether kind has been promoted to CompletedSources.
func (j *CollectionJob) HasCompleted(kind SourceKind) bool {
	return slices.Contains(j.CompletedSources, kind)
}

// PromoteSource moves kind from RemainingSources to CompletedSources and
// recomputes Progress. It is a no-op if kind is not remaining. Callers must
// hold the job manager's per-job lock.
func (j *CollectionJob) PromoteSource(kind SourceKind) {
	idx := slices.Index(j.RemainingSources, kind)
	if idx < 0 {
		return
	}
	j.RemainingSources = slices.Delete(j.RemainingSources, idx, idx+1)
	j.CompletedSources = append(j.CompletedSources, kind)
	j.Progress = 10 + (90*len(j.CompletedSources))/len(j.RequestedSources)
}
