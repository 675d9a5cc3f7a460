package store

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Task statuses. PROCESSING is the only non-terminal status.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Decision is the outcome of an admission attempt.
type Decision string

const (
	DecisionAccepted  Decision = "accepted"
	DecisionDuplicate Decision = "duplicate"
)

// TaskRecord is one pipeline run, keyed by (task, round).
type TaskRecord struct {
	gorm.Model
	Task  string `json:"task" gorm:"index:idx_task_round,unique"`
	Round int    `json:"round" gorm:"index:idx_task_round,unique"`
	Email string `json:"email"`

	Status      string     `json:"status" gorm:"index"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RepoURL          string `json:"repo_url,omitempty"`
	CommitSHA        string `json:"commit_sha,omitempty"`
	PagesURL         string `json:"pages_url,omitempty"`
	NotificationSent bool   `json:"notification_sent"`

	ScanClean bool   `json:"scan_clean"`
	Findings  string `json:"findings,omitempty"`

	Error string `json:"error,omitempty"`
}

// Key returns the "task-round" form used by the status endpoint.
func (r *TaskRecord) Key() string {
	return fmt.Sprintf("%s-%d", r.Task, r.Round)
}

// Terminal reports whether the record has reached a final status.
func (r *TaskRecord) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Store owns all task state. Admission runs its check-then-set under a
// mutex so concurrent identical requests cannot both pass the guard;
// everything else relies on the database for safe concurrent access.
type Store struct {
	db *gorm.DB

	admitMu sync.Mutex
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the task record schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&TaskRecord{})
}

// Admit atomically claims the (task, round) key. If a run for the key
// is still in flight the existing record is returned with
// DecisionDuplicate and nothing is mutated. A terminal record for the
// key is reset and re-claimed for a fresh run.
func (s *Store) Admit(task string, round int, email string) (*TaskRecord, Decision, error) {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	var existing TaskRecord
	err := s.db.Where("task = ? AND round = ?", task, round).First(&existing).Error
	switch {
	case err == nil:
		if existing.Status == StatusProcessing {
			return &existing, DecisionDuplicate, nil
		}
		// Re-run of a finished key: reuse the row, clear previous outcome.
		updates := map[string]interface{}{
			"email":             email,
			"status":            StatusProcessing,
			"started_at":        time.Now(),
			"completed_at":      nil,
			"repo_url":          "",
			"commit_sha":        "",
			"pages_url":         "",
			"notification_sent": false,
			"scan_clean":        false,
			"findings":          "",
			"error":             "",
		}
		if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
			return nil, "", fmt.Errorf("failed to re-claim task record: %w", err)
		}
		return &existing, DecisionAccepted, nil
	case err == gorm.ErrRecordNotFound:
		record := TaskRecord{
			Task:      task,
			Round:     round,
			Email:     email,
			Status:    StatusProcessing,
			StartedAt: time.Now(),
		}
		if err := s.db.Create(&record).Error; err != nil {
			return nil, "", fmt.Errorf("failed to create task record: %w", err)
		}
		return &record, DecisionAccepted, nil
	default:
		return nil, "", fmt.Errorf("failed to look up task record: %w", err)
	}
}

// MarkCompleted records a successful publish and the notifier outcome.
func (s *Store) MarkCompleted(id uint, repoURL, commitSHA, pagesURL string, notified bool) error {
	now := time.Now()
	return s.db.Model(&TaskRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            StatusCompleted,
		"completed_at":      &now,
		"repo_url":          repoURL,
		"commit_sha":        commitSHA,
		"pages_url":         pagesURL,
		"notification_sent": notified,
	}).Error
}

// MarkFailed records a terminal failure with a human-readable reason.
// A partial publish location, if one was reached, may already be on
// the record via SetPublishResult.
func (s *Store) MarkFailed(id uint, reason string) error {
	now := time.Now()
	return s.db.Model(&TaskRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       StatusFailed,
		"completed_at": &now,
		"error":        reason,
	}).Error
}

// SetScanResult notes the safety-scan outcome on an in-flight record.
func (s *Store) SetScanResult(id uint, clean bool, findings string) error {
	return s.db.Model(&TaskRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"scan_clean": clean,
		"findings":   findings,
	}).Error
}

// SetPublishResult records the publish location while the run is still
// in flight, so a later failure keeps the partial location.
func (s *Store) SetPublishResult(id uint, repoURL, commitSHA, pagesURL string) error {
	return s.db.Model(&TaskRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"repo_url":   repoURL,
		"commit_sha": commitSHA,
		"pages_url":  pagesURL,
	}).Error
}

// Get fetches the record for one (task, round) key.
func (s *Store) Get(task string, round int) (*TaskRecord, error) {
	var record TaskRecord
	if err := s.db.Where("task = ? AND round = ?", task, round).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ByTask returns every record whose task identifier matches.
func (s *Store) ByTask(task string) ([]TaskRecord, error) {
	var records []TaskRecord
	if err := s.db.Where("task = ?", task).Order("round asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Round1Terminal reports whether round 1 for the task has finished
// (completed or failed). Round 2 publishes are gated on this.
func (s *Store) Round1Terminal(task string) (bool, error) {
	record, err := s.Get(task, 1)
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.Terminal(), nil
}

// Overdue returns in-flight records whose run started more than
// budget ago. Used by the watchdog for logging only.
func (s *Store) Overdue(budget time.Duration) ([]TaskRecord, error) {
	cutoff := time.Now().Add(-budget)
	var records []TaskRecord
	err := s.db.Where("status = ? AND started_at < ?", StatusProcessing, cutoff).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
