package pipeline

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"app-deployment-service/internal/deploy-server/events"
	"app-deployment-service/internal/deploy-server/store"
)

type fakeGenerator struct {
	dir    string
	err    error
	called bool
	panics bool
}

func (g *fakeGenerator) Generate(ctx context.Context, brief string, checks []string, attachmentPaths []string, taskID string) (string, error) {
	g.called = true
	if g.panics {
		panic("generator blew up")
	}
	return g.dir, g.err
}

type fakeScanner struct {
	clean    bool
	findings string
}

func (s *fakeScanner) Scan(dir string) (bool, string) {
	return s.clean, s.findings
}

type fakePublisher struct {
	createCalled bool
	updateCalled bool
	err          error
}

func (p *fakePublisher) CreateAndDeploy(ctx context.Context, appDir, taskID string) (string, string, string, error) {
	p.createCalled = true
	if p.err != nil {
		return "", "", "", p.err
	}
	return "https://github.com/u/" + taskID, "sha-create", "https://u.github.io/" + taskID + "/", nil
}

func (p *fakePublisher) UpdateDeployment(ctx context.Context, taskID, appDir, note string) (string, string, string, error) {
	p.updateCalled = true
	if p.err != nil {
		return "", "", "", p.err
	}
	return "https://github.com/u/" + taskID, "sha-update", "https://u.github.io/" + taskID + "/", nil
}

type fakeNotifier struct {
	ok      bool
	called  bool
	payload events.EvaluationPayload
}

func (n *fakeNotifier) Notify(ctx context.Context, evaluationURL string, payload events.EvaluationPayload) bool {
	n.called = true
	n.payload = payload
	return n.ok
}

type runnerFixture struct {
	runner    *Runner
	store     *store.Store
	generator *fakeGenerator
	scanner   *fakeScanner
	publisher *fakePublisher
	notifier  *fakeNotifier
	dbFile    string
}

func setupRunner(t *testing.T) *runnerFixture {
	dbFile := "test_runner_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".db"
	_ = os.Remove(dbFile)
	gormDB, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	st := store.NewStore(gormDB)
	if err := st.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	f := &runnerFixture{
		store:     st,
		generator: &fakeGenerator{dir: t.TempDir()},
		scanner:   &fakeScanner{clean: true},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{ok: true},
		dbFile:    dbFile,
	}
	f.runner = &Runner{
		Store:          st,
		Generator:      f.generator,
		Scanner:        f.scanner,
		Publisher:      f.publisher,
		Notifier:       f.notifier,
		AttachmentsDir: t.TempDir(),
		Timeout:        10 * time.Minute,
		Margin:         time.Minute,
	}

	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
		os.Remove(dbFile)
	})
	return f
}

func (f *runnerFixture) admit(t *testing.T, task string, round int) (Request, uint) {
	record, decision, err := f.store.Admit(task, round, "student@example.com")
	assert.NoError(t, err)
	assert.Equal(t, store.DecisionAccepted, decision)
	return Request{
		Email:         "student@example.com",
		Task:          task,
		Round:         round,
		Nonce:         "nonce-1",
		Brief:         "Build a markdown previewer",
		Checks:        []string{"renders markdown"},
		EvaluationURL: "http://evaluator.local/notify",
	}, record.ID
}

func TestRunner_BuildSuccess(t *testing.T) {
	f := setupRunner(t)
	req, id := f.admit(t, "t1", 1)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 1)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, record.Status)
	assert.Equal(t, "https://github.com/u/t1", record.RepoURL)
	assert.Equal(t, "sha-create", record.CommitSHA)
	assert.Equal(t, "https://u.github.io/t1/", record.PagesURL)
	assert.True(t, record.NotificationSent)
	assert.True(t, record.ScanClean)
	assert.True(t, f.publisher.createCalled)
	assert.False(t, f.publisher.updateCalled)

	assert.Equal(t, "t1", f.notifier.payload.Task)
	assert.Equal(t, 1, f.notifier.payload.Round)
	assert.Equal(t, "nonce-1", f.notifier.payload.Nonce)
	assert.Equal(t, "sha-create", f.notifier.payload.CommitSHA)
}

func TestRunner_GeneratorFailureSkipsPublish(t *testing.T) {
	f := setupRunner(t)
	f.generator.err = assert.AnError
	req, id := f.admit(t, "t1", 1)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 1)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "generation failed")
	assert.False(t, f.publisher.createCalled, "publish must not run after a generation failure")
	assert.False(t, f.notifier.called)
}

func TestRunner_PublishFailure(t *testing.T) {
	f := setupRunner(t)
	f.publisher.err = assert.AnError
	req, id := f.admit(t, "t1", 1)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 1)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "publish failed")
	assert.False(t, f.notifier.called)
}

func TestRunner_NotifyExhaustedStillCompleted(t *testing.T) {
	f := setupRunner(t)
	f.notifier.ok = false
	req, id := f.admit(t, "t1", 1)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 1)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, record.Status)
	assert.False(t, record.NotificationSent)
	assert.NotEmpty(t, record.PagesURL)
}

func TestRunner_DirtyScanStillPublishes(t *testing.T) {
	f := setupRunner(t)
	f.scanner.clean = false
	f.scanner.findings = "index.html: OpenAI API Key (sk- prefix) (line 12)"
	req, id := f.admit(t, "t1", 1)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 1)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, record.Status)
	assert.False(t, record.ScanClean)
	assert.Contains(t, record.Findings, "OpenAI API Key")
	assert.True(t, f.publisher.createCalled, "a dirty scan warns but never blocks publish")
}

func TestRunner_RevisionRequiresTerminalRound1(t *testing.T) {
	f := setupRunner(t)
	req, id := f.admit(t, "t1", 2)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 2)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "round 1 incomplete")
	assert.False(t, f.publisher.updateCalled, "publish must not run without a finished round 1")
	assert.False(t, f.publisher.createCalled)
}

func TestRunner_RevisionWithInFlightRound1Fails(t *testing.T) {
	f := setupRunner(t)
	_, _, err := f.store.Admit("t1", 1, "student@example.com")
	assert.NoError(t, err)
	req, id := f.admit(t, "t1", 2)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 2)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "round 1 incomplete")
	assert.False(t, f.publisher.updateCalled)
}

func TestRunner_RevisionSuccess(t *testing.T) {
	f := setupRunner(t)
	round1, _, err := f.store.Admit("t1", 1, "student@example.com")
	assert.NoError(t, err)
	assert.NoError(t, f.store.MarkCompleted(round1.ID, "repo", "sha", "pages", true))

	req, id := f.admit(t, "t1", 2)
	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 2)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, record.Status)
	assert.Equal(t, "sha-update", record.CommitSHA)
	assert.True(t, f.publisher.updateCalled)
	assert.False(t, f.publisher.createCalled)
}

func TestRunner_HardDeadlineSkipsNotify(t *testing.T) {
	f := setupRunner(t)
	f.runner.Timeout = time.Nanosecond
	f.runner.Margin = 0
	req, id := f.admit(t, "t1", 1)

	f.runner.Run(req, id)

	record, err := f.store.Get("t1", 1)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "exceeded timeout")
	assert.False(t, f.notifier.called, "the notifier is skipped when the hard budget is spent")
	// The publish location reached before the deadline is kept.
	assert.Equal(t, "https://u.github.io/t1/", record.PagesURL)
}

func TestRunner_PanicBecomesFailedRecord(t *testing.T) {
	f := setupRunner(t)
	f.generator.panics = true
	req, id := f.admit(t, "t1", 1)

	assert.NotPanics(t, func() { f.runner.Run(req, id) })

	record, err := f.store.Get("t1", 1)
	assert.NoError(t, err)
	assert.Equal(t, store.StatusFailed, record.Status)
	assert.Contains(t, record.Error, "pipeline panic")
}
