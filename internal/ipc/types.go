package ipc

import "time"

// Request/response payloads for the JSON-RPC control surface. These mirror
// the store models as flat DTOs so the wire format stays stable even when the
// internals move.

// StatusRequest asks for the daemon runtime snapshot.
type StatusRequest struct{}

// StatusResponse reports daemon state and row counts.
type StatusResponse struct {
	Running      bool           `json:"running"`
	Capture      string         `json:"capture"`
	CaptureError string         `json:"capture_error,omitempty"`
	DatabasePath string         `json:"database_path"`
	LockPath     string         `json:"lock_path"`
	PID          int            `json:"pid"`
	Stats        map[string]int `json:"stats"`
}

// RecordRequest controls the capture producer.
type RecordRequest struct{}

// RecordResponse reports the capture state after the transition.
type RecordResponse struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// TimelineRequest asks for cards overlapping a window.
type TimelineRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TimelineResponse carries the matching cards ordered by start time.
type TimelineResponse struct {
	Cards []TimelineCard `json:"cards"`
}

// TimelineCard is the wire form of one activity card.
type TimelineCard struct {
	ID                int64         `json:"id"`
	BatchID           int64         `json:"batch_id"`
	Category          string        `json:"category"`
	Title             string        `json:"title"`
	Summary           string        `json:"summary"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	AppSites          []AppSite     `json:"app_sites,omitempty"`
	Distractions      []Distraction `json:"distractions,omitempty"`
	ProductivityScore int           `json:"productivity_score"`
}

// AppSite is one application or site with its attributed time.
type AppSite struct {
	Name    string `json:"name"`
	Seconds int    `json:"seconds"`
}

// Distraction is one off-task moment with its attributed time.
type Distraction struct {
	Title   string `json:"title"`
	Seconds int    `json:"seconds"`
}

// BatchListRequest asks for batches, optionally filtered by status.
type BatchListRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

// BatchListResponse carries the matching batches.
type BatchListResponse struct {
	Batches []Batch `json:"batches"`
}

// Batch is the wire form of one analysis batch.
type Batch struct {
	ID           int64      `json:"id"`
	SpanStart    time.Time  `json:"span_start"`
	SpanEnd      time.Time  `json:"span_end"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// StatsRequest asks for row counts by status.
type StatsRequest struct{}

// StatsResponse reports row counts by status.
type StatsResponse struct {
	SegmentsPending    int `json:"segments_pending"`
	SegmentsProcessing int `json:"segments_processing"`
	SegmentsCompleted  int `json:"segments_completed"`
	SegmentsFailed     int `json:"segments_failed"`
	BatchesProcessing  int `json:"batches_processing"`
	BatchesCompleted   int `json:"batches_completed"`
	BatchesFailed      int `json:"batches_failed"`
	Cards              int `json:"cards"`
}

// DatabaseHealthRequest asks for detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports detailed database diagnostics.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TablesPresent    []string `json:"tables_present,omitempty"`
	MissingTables    []string `json:"missing_tables,omitempty"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalSegments    int      `json:"total_segments"`
	TotalCards       int      `json:"total_cards"`
	Error            string   `json:"error,omitempty"`
}

// DigestTestRequest triggers an immediate digest send for a period.
type DigestTestRequest struct {
	Period string `json:"period"`
}

// DigestTestResponse reports the outcome of a test send.
type DigestTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message,omitempty"`
}
