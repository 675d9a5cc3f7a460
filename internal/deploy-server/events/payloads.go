package events

import "time"

// EvaluationPayload is posted to the caller-supplied evaluation URL
// when a run reaches the notify stage. Immutable once built.
type EvaluationPayload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// LifecycleEvent is published to Kafka on admission and on terminal
// transitions. Delivery is best-effort.
type LifecycleEvent struct {
	EventID   string    `json:"event_id"`
	Task      string    `json:"task"`
	Round     int       `json:"round"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
