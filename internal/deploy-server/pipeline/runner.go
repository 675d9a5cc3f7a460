package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"app-deployment-service/internal/deploy-server/attachments"
	"app-deployment-service/internal/deploy-server/events"
	"app-deployment-service/internal/deploy-server/kafka"
	"app-deployment-service/internal/deploy-server/store"
)

// Generator produces the app artifacts for a brief. May fail; failure
// is fatal for the run.
type Generator interface {
	Generate(ctx context.Context, brief string, checks []string, attachmentPaths []string, taskID string) (appDir string, err error)
}

// Scanner checks generated artifacts for leaked secrets. A dirty
// result is recorded but never blocks publishing.
type Scanner interface {
	Scan(dir string) (clean bool, findings string)
}

// Publisher pushes artifacts to the hosting provider. Round 1 creates
// a new deployment, round 2 updates the existing one.
type Publisher interface {
	CreateAndDeploy(ctx context.Context, appDir, taskID string) (repoURL, commitSHA, pagesURL string, err error)
	UpdateDeployment(ctx context.Context, taskID, appDir, note string) (repoURL, commitSHA, pagesURL string, err error)
}

// Notifier delivers the evaluation payload. Returns true when the
// callback acknowledged it.
type Notifier interface {
	Notify(ctx context.Context, evaluationURL string, payload events.EvaluationPayload) bool
}

// Request is the validated inbound task request handed to the runner.
type Request struct {
	Email         string
	Task          string
	Round         int
	Nonce         string
	Brief         string
	Checks        []string
	EvaluationURL string
	Attachments   []attachments.Attachment
}

// Runner drives one admitted task request through the pipeline:
// attachments, generation, safety scan, publish, deadline check,
// notification. Every failure is absorbed into the task record; the
// runner never propagates errors to the request handler it was
// dispatched from.
type Runner struct {
	Store     *store.Store
	Generator Generator
	Scanner   Scanner
	Publisher Publisher
	Notifier  Notifier
	Events    *kafka.Emitter

	AttachmentsDir string
	Timeout        time.Duration
	Margin         time.Duration
}

// Dispatch starts the pipeline on its own goroutine so admission
// returns promptly regardless of downstream latency.
func (r *Runner) Dispatch(req Request, recordID uint) {
	go r.Run(req, recordID)
}

// Run executes the full pipeline for one admitted request.
func (r *Runner) Run(req Request, recordID uint) {
	ctx := context.Background()
	budget := NewBudget(time.Now(), r.Timeout, r.Margin)

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(ctx, req, recordID, fmt.Sprintf("pipeline panic: %v", rec))
		}
	}()

	log.Printf("Starting task: %s round %d", req.Task, req.Round)

	// Stage 1: resolve attachments. Malformed entries are skipped
	// inside SaveAll; only filesystem trouble is fatal here.
	saved, err := attachments.SaveAll(r.AttachmentsDir, req.Task, req.Attachments)
	if err != nil {
		r.fail(ctx, req, recordID, "attachment handling failed: "+err.Error())
		return
	}
	log.Printf("Saved %d attachments for task %s", len(saved), req.Task)

	// Stage 2: generate.
	appDir, err := r.Generator.Generate(ctx, req.Brief, req.Checks, saved, req.Task)
	if err != nil {
		r.fail(ctx, req, recordID, "generation failed: "+err.Error())
		return
	}
	log.Printf("Generated app at: %s", appDir)

	// Stage 3: safety gate. Dirty results are recorded and logged but
	// the run still publishes.
	clean, findings := r.Scanner.Scan(appDir)
	if !clean {
		log.Printf("Secrets detected in generated code for task %s - deployment may contain sensitive information", req.Task)
	}
	if err := r.Store.SetScanResult(recordID, clean, findings); err != nil {
		log.Printf("Failed to record scan result for task %s: %v", req.Task, err)
	}

	if budget.SoftExceeded() {
		log.Printf("Approaching timeout (%.1fs elapsed)", budget.Elapsed().Seconds())
	}

	// Stage 4: publish. A revision requires a finished round 1.
	var repoURL, commitSHA, pagesURL string
	if req.Round == 1 {
		repoURL, commitSHA, pagesURL, err = r.Publisher.CreateAndDeploy(ctx, appDir, req.Task)
	} else {
		terminal, terr := r.Store.Round1Terminal(req.Task)
		if terr != nil {
			r.fail(ctx, req, recordID, "round 1 lookup failed: "+terr.Error())
			return
		}
		if !terminal {
			r.fail(ctx, req, recordID, "round 1 incomplete: revision requires a finished initial build")
			return
		}
		note := fmt.Sprintf("Round %d update", req.Round)
		repoURL, commitSHA, pagesURL, err = r.Publisher.UpdateDeployment(ctx, req.Task, appDir, note)
	}
	if err != nil {
		r.fail(ctx, req, recordID, "publish failed: "+err.Error())
		return
	}
	if err := r.Store.SetPublishResult(recordID, repoURL, commitSHA, pagesURL); err != nil {
		log.Printf("Failed to record publish result for task %s: %v", req.Task, err)
	}
	log.Printf("Deployed task %s: %s", req.Task, pagesURL)

	// Stage 5: deadline check. A hard overrun fails the run and skips
	// the notifier; a soft overrun only warns.
	elapsed := budget.Elapsed()
	log.Printf("Task processing took %.1fs", elapsed.Seconds())
	if budget.HardExceeded() {
		r.fail(ctx, req, recordID, fmt.Sprintf("exceeded timeout (%.1fs > %.0fs)", elapsed.Seconds(), budget.Total().Seconds()))
		return
	}

	// Stage 6: notify. The run already counts as completed; the
	// notifier outcome is recorded separately.
	payload := events.EvaluationPayload{
		Email:     req.Email,
		Task:      req.Task,
		Round:     req.Round,
		Nonce:     req.Nonce,
		RepoURL:   repoURL,
		CommitSHA: commitSHA,
		PagesURL:  pagesURL,
	}
	notified := r.Notifier.Notify(ctx, req.EvaluationURL, payload)

	if err := r.Store.MarkCompleted(recordID, repoURL, commitSHA, pagesURL, notified); err != nil {
		log.Printf("Failed to mark task %s completed: %v", req.Task, err)
		return
	}
	r.Events.Emit(ctx, req.Task, req.Round, store.StatusCompleted, "")
	log.Printf("Task completed: %s round %d (notification_sent=%v)", req.Task, req.Round, notified)
}

func (r *Runner) fail(ctx context.Context, req Request, recordID uint, reason string) {
	log.Printf("Task failed: %s round %d: %s", req.Task, req.Round, reason)
	if err := r.Store.MarkFailed(recordID, reason); err != nil {
		log.Printf("Failed to mark task %s failed: %v", req.Task, err)
	}
	r.Events.Emit(ctx, req.Task, req.Round, store.StatusFailed, reason)
}
