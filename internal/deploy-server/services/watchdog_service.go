package services

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"app-deployment-service/internal/deploy-server/store"
)

// WatchdogService periodically reports runs stuck in PROCESSING past
// the pipeline budget. The deadline check itself is cooperative and
// lives in the runner; this only surfaces overdue runs in the logs so
// operators notice a wedged collaborator.
type WatchdogService struct {
	Store     *store.Store
	Scheduler gocron.Scheduler
	Budget    time.Duration
	Interval  time.Duration
}

func NewWatchdogService(st *store.Store, budget time.Duration) (*WatchdogService, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &WatchdogService{
		Store:     st,
		Scheduler: s,
		Budget:    budget,
		Interval:  time.Minute,
	}, nil
}

func (w *WatchdogService) Start() error {
	log.Println("WatchdogService starting...")
	job, err := w.Scheduler.NewJob(
		gocron.DurationJob(w.Interval),
		gocron.NewTask(w.CheckOverdue),
		gocron.WithName("overdue_task_watchdog"),
		gocron.WithTags("watchdog"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule watchdog job: %w", err)
	}
	w.Scheduler.Start()
	log.Printf("WatchdogService started, job ID: %s, interval: %s", job.ID(), w.Interval)
	return nil
}

func (w *WatchdogService) Stop() {
	log.Println("WatchdogService stopping...")
	if err := w.Scheduler.Shutdown(); err != nil {
		log.Printf("Error shutting down watchdog scheduler: %v", err)
	} else {
		log.Println("Watchdog scheduler shut down successfully.")
	}
}

// CheckOverdue logs every in-flight run older than the budget.
// Exported for testing.
func (w *WatchdogService) CheckOverdue() {
	records, err := w.Store.Overdue(w.Budget)
	if err != nil {
		log.Printf("Watchdog: failed to query overdue tasks: %v", err)
		return
	}
	for _, rec := range records {
		log.Printf("Watchdog: task %s round %d still PROCESSING after %.0fs (budget %.0fs)",
			rec.Task, rec.Round, time.Since(rec.StartedAt).Seconds(), w.Budget.Seconds())
	}
}
