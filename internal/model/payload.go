package model

import "time"

// Provenance tags where a payload came from.
type Provenance string

const (
	// ProvenanceLive marks data collected from the real upstream.
	ProvenanceLive Provenance = "live"
	// ProvenanceFallbackEstimated marks synthetic data generated because the
	// upstream had nothing usable (e.g. zero results).
	ProvenanceFallbackEstimated Provenance = "fallback_estimated"
	// ProvenanceFallbackError marks synthetic data generated after the
	// upstream failed outright.
	ProvenanceFallbackError Provenance = "fallback_error"
)

// SignalSample is a single sampled item (article, post, review) backing a
// payload's aggregate numbers.
type SignalSample struct {
	Title     string  `json:"title"`
	URL       string  `json:"url,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
	Sentiment float64 `json:"sentiment"`
}

// SourcePayload is the per-source collection result for one entity. Every
// payload carries a sentiment axis in [-1, 1] and a provenance tag; the
// remaining fields are source-specific.
type SourcePayload struct {
	Kind        SourceKind         `json:"kind"`
	Sentiment   float64            `json:"sentiment"`
	Mentions    int                `json:"mentions"`
	Samples     []SignalSample     `json:"samples,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Provenance  Provenance         `json:"provenance"`
	CollectedAt time.Time          `json:"collected_at"`
}

// EntitySignalBundle maps each collected source to its payload for one
// entity. Fallback policy guarantees every requested source has an entry.
type EntitySignalBundle map[SourceKind]*SourcePayload

// CollectedData is the immutable aggregate persisted when a job completes,
// keyed by job id and consumed by the downstream analysis stage.
type CollectedData struct {
	JobID          string             `json:"job_id"`
	BrandID        string             `json:"brand_id"`
	CompetitorID   string             `json:"competitor_id"`
	AreaID         string             `json:"area_id"`
	BrandData      EntitySignalBundle `json:"brand_data"`
	CompetitorData EntitySignalBundle `json:"competitor_data"`
	CollectedAt    time.Time          `json:"collected_at"`
}
