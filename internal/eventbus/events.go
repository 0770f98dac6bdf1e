package eventbus

// Event payloads published alongside the subjects in eventbus.go. Each is
// a narrow record: ids, project, and the timestamp, never the full row.

// ObservationCreatedEvent announces a newly ingested observation.
type ObservationCreatedEvent struct {
	ID             int64  `json:"id"`
	Project        string `json:"project"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

// SummaryCreatedEvent announces an end-of-session summary.
type SummaryCreatedEvent struct {
	ID             int64  `json:"id"`
	SessionID      int64  `json:"session_id"`
	Project        string `json:"project"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

// CheckpointCreatedEvent announces a resumable checkpoint.
type CheckpointCreatedEvent struct {
	ID             int64  `json:"id"`
	SessionID      int64  `json:"session_id"`
	Project        string `json:"project"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

// SessionStartedEvent announces a session transitioning to active.
type SessionStartedEvent struct {
	ID               int64  `json:"id"`
	ContentSessionID string `json:"content_session_id"`
	Project          string `json:"project"`
	StartedAtEpoch   int64  `json:"started_at_epoch"`
}

// SessionCompletedEvent announces a session transitioning to completed.
type SessionCompletedEvent struct {
	ID               int64  `json:"id"`
	ContentSessionID string `json:"content_session_id"`
	Project          string `json:"project"`
	CompletedAtEpoch int64  `json:"completed_at_epoch"`
}
