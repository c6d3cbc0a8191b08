// Package scheduler registers enabled sync jobs with a cron runner and
// rebuilds the registration set whenever job definitions change.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/lohithk/tallysync/internal/domain"
	"github.com/lohithk/tallysync/internal/repository"
)

// Runner executes one job's sync pass.
type Runner interface {
	RunJob(ctx context.Context, job domain.SyncJob)
}

// Registry owns the cron instance and the mapping from job IDs to cron
// entries. Reload replaces the whole mapping; individual job edits go
// through the repository and then a Reload.
type Registry struct {
	cron   *cron.Cron
	jobs   repository.JobRepository
	runner Runner

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running map[string]bool
}

func NewRegistry(jobs repository.JobRepository, runner Runner) *Registry {
	return &Registry{
		cron:    cron.New(),
		jobs:    jobs,
		runner:  runner,
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
	}
}

// Start begins firing registered jobs.
func (r *Registry) Start() {
	r.cron.Start()
}

// Stop halts the cron runner and waits for in-flight jobs to return.
func (r *Registry) Stop() {
	<-r.cron.Stop().Done()
}

// Reload drops every registration and re-registers the currently enabled
// jobs. A job whose trigger cannot be expressed as a cron spec is skipped
// with a log line rather than failing the whole reload.
func (r *Registry) Reload(ctx context.Context) error {
	jobs, err := r.jobs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled jobs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.entries {
		r.cron.Remove(id)
	}
	r.entries = make(map[string]cron.EntryID)

	for _, job := range jobs {
		spec, err := CronSpec(job)
		if err != nil {
			log.Printf("[scheduler] job %q skipped: %v", job.Name, err)
			continue
		}
		job := job
		entryID, err := r.cron.AddFunc(spec, func() { r.fire(job) })
		if err != nil {
			log.Printf("[scheduler] job %q rejected by cron (%s): %v", job.Name, spec, err)
			continue
		}
		r.entries[job.ID.String()] = entryID
		log.Printf("[scheduler] job %q registered with spec %q", job.Name, spec)
	}
	return nil
}

// fire runs one job unless its previous firing is still in flight.
func (r *Registry) fire(job domain.SyncJob) {
	key := job.ID.String()

	r.mu.Lock()
	if r.running[key] {
		r.mu.Unlock()
		log.Printf("[scheduler] job %q still running, skipping this firing", job.Name)
		return
	}
	r.running[key] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, key)
		r.mu.Unlock()
	}()

	r.runner.RunJob(context.Background(), job)
}

// CronSpec translates a job trigger into a cron expression.
func CronSpec(job domain.SyncJob) (string, error) {
	switch job.Trigger {
	case domain.TriggerInterval:
		if job.IntervalMinutes < 1 {
			return "", fmt.Errorf("interval trigger needs a positive minute count")
		}
		return fmt.Sprintf("@every %dm", job.IntervalMinutes), nil

	case domain.TriggerDaily:
		hour, minute, err := parseAtTime(job.AtTime)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil

	case domain.TriggerMonthly:
		hour, minute, err := parseAtTime(job.AtTime)
		if err != nil {
			return "", err
		}
		if job.DayOfMonth < 1 || job.DayOfMonth > 31 {
			return "", fmt.Errorf("monthly trigger needs a day of month between 1 and 31")
		}
		return fmt.Sprintf("%d %d %d * *", minute, hour, job.DayOfMonth), nil

	case domain.TriggerYearly:
		hour, minute, err := parseAtTime(job.AtTime)
		if err != nil {
			return "", err
		}
		month, day, err := parseMonthDay(job.MonthDay)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d %d %d *", minute, hour, day, month), nil

	default:
		return "", fmt.Errorf("unknown trigger kind %q", job.Trigger)
	}
}

// parseAtTime parses "HH:MM" in 24-hour form.
func parseAtTime(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q has an invalid hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q has an invalid minute", s)
	}
	return hour, minute, nil
}

// parseMonthDay parses "MM-DD".
func parseMonthDay(s string) (month, day int, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("date %q is not MM-DD", s)
	}
	month, err = strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("date %q has an invalid month", s)
	}
	day, err = strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, fmt.Errorf("date %q has an invalid day", s)
	}
	return month, day, nil
}
