package store

import (
	"fmt"
	"strings"
	"time"
)

// SegmentStatus represents the lifecycle of a captured segment.
type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentProcessing SegmentStatus = "processing"
	SegmentCompleted  SegmentStatus = "completed"
	SegmentFailed     SegmentStatus = "failed"
)

var allSegmentStatuses = []SegmentStatus{
	SegmentPending,
	SegmentProcessing,
	SegmentCompleted,
	SegmentFailed,
}

// ParseSegmentStatus validates a raw status string.
func ParseSegmentStatus(raw string) (SegmentStatus, error) {
	candidate := SegmentStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range allSegmentStatuses {
		if candidate == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown segment status %q", raw)
}

// BatchStatus represents the lifecycle of an analysis batch. Batches are
// created directly in processing by the claim transaction.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

var allBatchStatuses = []BatchStatus{
	BatchProcessing,
	BatchCompleted,
	BatchFailed,
}

// ParseBatchStatus validates a raw status string.
func ParseBatchStatus(raw string) (BatchStatus, error) {
	candidate := BatchStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range allBatchStatuses {
		if candidate == status {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown batch status %q", raw)
}

// Categories is the fixed activity category set accepted on timeline cards.
var Categories = []string{
	"coding",
	"work",
	"research",
	"browsing",
	"communication",
	"meeting",
	"entertainment",
	"social",
	"break",
	"other",
}

var categorySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Categories))
	for _, category := range Categories {
		set[category] = struct{}{}
	}
	return set
}()

// ValidCategory reports whether a category belongs to the fixed set.
func ValidCategory(category string) bool {
	_, ok := categorySet[category]
	return ok
}

// Segment is one captured screen recording interval persisted in SQLite. The
// row outlives its media file: once the owning batch completes the file is
// removed but the row keeps its original bounds.
type Segment struct {
	ID              int64
	MediaPath       string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	Status          SegmentStatus
	BatchID         *int64
	RetryCount      int
	ErrorMessage    string
	CreatedAt       time.Time
}

// Batch is a claimed group of segments analyzed in one inference call.
type Batch struct {
	ID               int64
	SpanStart        time.Time
	SpanEnd          time.Time
	Status           BatchStatus
	ObservationsJSON string
	ErrorMessage     string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// AppSite names an application or site observed during a card interval.
type AppSite struct {
	Name    string `json:"name"`
	Seconds int    `json:"seconds,omitempty"`
}

// Distraction is a brief off-task interval noted inside a card.
type Distraction struct {
	Title   string `json:"title"`
	Seconds int    `json:"seconds,omitempty"`
}

// TimelineCard is one labeled activity interval on the timeline.
type TimelineCard struct {
	ID                int64
	BatchID           int64
	Category          string
	Title             string
	Summary           string
	StartTime         time.Time
	EndTime           time.Time
	AppSites          []AppSite
	Distractions      []Distraction
	ProductivityScore int
	CreatedAt         time.Time
}

// Setting is one key/value row in the settings table.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// DigestLogEntry records one digest send attempt.
type DigestLogEntry struct {
	ID           int64
	Period       string
	SendTime     time.Time
	Success      bool
	ErrorMessage string
	RetryCount   int
}

// Stats aggregates row counts per lifecycle state.
type Stats struct {
	SegmentsPending    int
	SegmentsProcessing int
	SegmentsCompleted  int
	SegmentsFailed     int
	BatchesProcessing  int
	BatchesCompleted   int
	BatchesFailed      int
	Cards              int
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalSegments    int
	TotalCards       int
	Error            string
}
