package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vidfetch/vidfetch/internal/common/logging"
	"github.com/vidfetch/vidfetch/internal/common/util"
	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
	"github.com/vidfetch/vidfetch/internal/vidfetch/eventbus"
	"github.com/vidfetch/vidfetch/internal/vidfetch/fetcher"
	"github.com/vidfetch/vidfetch/internal/vidfetch/metrics"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobFinished      = errors.New("job already finished")
	ErrQueueFull        = errors.New("download queue is full")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
)

// jobRecord is the scheduler-private state of one job. The embedded info is
// the only part that ever leaves this package, and only as a copy.
type jobRecord struct {
	info    domain.JobInfo
	request domain.JobRequest
	cancel  context.CancelFunc
}

// Scheduler owns the job table. It dispatches the oldest queued job to a
// fetcher whenever a capacity slot is free, applies progress reports with a
// monotonic percent clamp, and publishes lifecycle events. One mutex guards
// the table; fetchers run outside the lock and re-enter only for the brief
// update-and-publish step.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*jobRecord
	order   []string
	running int
	stopped bool

	capacity      int
	maxQueuedJobs int

	fetcher fetcher.Fetcher
	events  eventbus.Publisher

	baseCtx  context.Context
	wg       sync.WaitGroup
	onChange func()

	clock util.Clock
	newID func() string
	log   *log.Entry
}

func NewScheduler(config configuration.SchedulingConfig, f fetcher.Fetcher, events eventbus.Publisher) *Scheduler {
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	maxQueuedJobs := config.MaxQueuedJobs
	if maxQueuedJobs <= 0 {
		maxQueuedJobs = 100
	}
	return &Scheduler{
		jobs:          map[string]*jobRecord{},
		capacity:      capacity,
		maxQueuedJobs: maxQueuedJobs,
		fetcher:       f,
		events:        events,
		baseCtx:       context.Background(),
		clock:         util.WallClock{},
		newID:         util.NewULID,
		log:           log.WithField("service", "scheduler"),
	}
}

// SetOnChange registers a callback invoked after every lifecycle transition,
// outside the table lock. The gateway hub uses it to broadcast fresh queue
// snapshots. Must be set before the first Submit.
func (s *Scheduler) SetOnChange(onChange func()) {
	s.onChange = onChange
}

// Start supplies the context every fetch derives from. Cancelling it
// cancels all running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

func (s *Scheduler) Capacity() int {
	return s.capacity
}

// Submit validates the request, stores a queued job and triggers dispatch.
// It never blocks on the download itself.
func (s *Scheduler) Submit(request domain.JobRequest) (string, error) {
	if err := request.Validate(); err != nil {
		return "", errors.WithMessage(err, "rejecting request")
	}
	mode := request.Mode
	if mode == "" {
		mode = domain.ModeDownload
		request.Mode = mode
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", ErrSchedulerStopped
	}
	if s.pendingCountLocked() >= s.maxQueuedJobs {
		s.mu.Unlock()
		return "", ErrQueueFull
	}

	id := s.newID()
	now := s.clock.Now()
	s.jobs[id] = &jobRecord{
		info: domain.JobInfo{
			ID:        id,
			URL:       request.URL,
			Mode:      mode,
			State:     domain.JobQueued,
			CreatedAt: now,
			UpdatedAt: now,
		},
		request: request,
	}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.log.WithField("downloadId", id).WithField("url", request.URL).Info("Job queued")
	s.events.Publish(domain.QueuedEvent(id))
	s.dispatch()
	s.notifyChange()
	return id, nil
}

// Snapshot returns copies of all job records in submission order.
func (s *Scheduler) Snapshot() []domain.JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]domain.JobInfo, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, s.jobs[id].info)
	}
	return snapshot
}

// Request returns the original submission for a known job.
func (s *Scheduler) Request(id string) (domain.JobRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.jobs[id]
	if !ok {
		return domain.JobRequest{}, false
	}
	return record.request, true
}

// Cancel stops a queued or running job. Queued jobs become Cancelled
// immediately; running jobs are signalled through their context and become
// Cancelled when the fetcher returns.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	record, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if record.info.State.IsTerminal() {
		s.mu.Unlock()
		return ErrJobFinished
	}

	if record.info.State == domain.JobQueued {
		record.info.State = domain.JobCancelled
		record.info.Message = "Download cancelled"
		record.info.UpdatedAt = s.clock.Now()
		percent := record.info.Percent
		s.mu.Unlock()

		s.log.WithField("downloadId", id).Info("Queued job cancelled")
		s.events.Publish(domain.ProgressEvent(id, percent, "Download cancelled"))
		s.notifyChange()
		return nil
	}

	// Running: cooperative signal, the runner observes it and finishes the
	// transition itself.
	cancel := record.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.log.WithField("downloadId", id).Info("Cancellation requested for running job")
	return nil
}

// ClearFinished drops all terminal jobs from the table and returns how many
// were removed.
func (s *Scheduler) ClearFinished() int {
	s.mu.Lock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.jobs[id].info.State.IsTerminal() {
			delete(s.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	s.mu.Unlock()

	if removed > 0 {
		s.log.WithField("removed", removed).Info("Cleared finished jobs")
		s.notifyChange()
	}
	return removed
}

// Stop rejects further submissions, cancels running jobs and waits up to
// timeout for their fetchers to return. Reports true if the wait timed out.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	s.stopped = true
	for _, record := range s.jobs {
		if record.cancel != nil {
			record.cancel()
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}

// dispatch moves the oldest queued jobs into Running until capacity is
// reached. The Queued -> Running transition happens under the lock, so a
// job is handed to exactly one fetcher.
func (s *Scheduler) dispatch() {
	started := false
	s.mu.Lock()
	for !s.stopped && s.running < s.capacity {
		record := s.nextQueuedLocked()
		if record == nil {
			break
		}
		record.info.State = domain.JobRunning
		record.info.UpdatedAt = s.clock.Now()
		s.running++

		ctx, cancel := context.WithCancel(s.baseCtx)
		record.cancel = cancel
		s.wg.Add(1)
		started = true
		go s.run(ctx, record.info.ID, record.request)
	}
	s.mu.Unlock()

	if started {
		s.notifyChange()
	}
}

func (s *Scheduler) nextQueuedLocked() *jobRecord {
	for _, id := range s.order {
		if record := s.jobs[id]; record.info.State == domain.JobQueued {
			return record
		}
	}
	return nil
}

func (s *Scheduler) pendingCountLocked() int {
	pending := 0
	for _, record := range s.jobs {
		if !record.info.State.IsTerminal() {
			pending++
		}
	}
	return pending
}

// run executes one job outside the lock and applies the terminal outcome.
// It is the only goroutine that reports for this job, so the events it
// publishes stay in order.
func (s *Scheduler) run(ctx context.Context, id string, request domain.JobRequest) {
	defer s.wg.Done()
	start := time.Now()
	logger := s.log.WithField("downloadId", id)
	logger.Info("Job started")

	artifact, err := s.fetcher.Fetch(ctx, request, func(percent float64, message string) {
		s.applyProgress(id, percent, message)
	})

	outcome := domain.JobDone
	switch {
	case err == nil:
		s.complete(id, domain.JobDone, artifact.File, "Download complete")
		logger.WithField("file", artifact.File).Info("Job done")
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		outcome = domain.JobCancelled
		s.complete(id, domain.JobCancelled, "", "Download cancelled")
		logger.Info("Job cancelled")
	default:
		outcome = domain.JobFailed
		s.complete(id, domain.JobFailed, "", err.Error())
		logging.WithStacktrace(logger, err).Warn("Job failed")
	}
	metrics.ObserveJobRun(outcome, time.Since(start).Seconds())

	s.dispatch()
}

// applyProgress updates one job from its fetcher. Percent never regresses:
// the stored and published value is max(previous, incoming), while the raw
// message text is forwarded as-is. Reports arriving after a terminal state
// are dropped.
func (s *Scheduler) applyProgress(id string, percent float64, message string) {
	s.mu.Lock()
	record, ok := s.jobs[id]
	if !ok || record.info.State != domain.JobRunning {
		s.mu.Unlock()
		return
	}
	if percent < record.info.Percent {
		percent = record.info.Percent
	}
	record.info.Percent = percent
	record.info.Message = message
	record.info.UpdatedAt = s.clock.Now()
	s.mu.Unlock()

	s.events.Publish(domain.ProgressEvent(id, percent, message))
}

// complete applies a terminal outcome. Terminal transitions take precedence
// over any percent ordering; illegal ones indicate a scheduling bug and are
// only logged, never propagated into other jobs.
func (s *Scheduler) complete(id string, state domain.JobState, file string, message string) {
	s.mu.Lock()
	record, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if !domain.ValidTransition(record.info.State, state) {
		s.mu.Unlock()
		s.log.WithField("downloadId", id).
			Errorf("Illegal transition %s -> %s dropped", record.info.State, state)
		return
	}
	record.info.State = state
	record.info.Message = message
	record.info.UpdatedAt = s.clock.Now()
	switch state {
	case domain.JobDone:
		record.info.File = file
		record.info.Percent = 100
	case domain.JobFailed:
		record.info.Error = message
	}
	record.cancel = nil
	percent := record.info.Percent
	s.running--
	s.mu.Unlock()

	switch state {
	case domain.JobDone:
		s.events.Publish(domain.DoneEvent(id, file, message))
	case domain.JobFailed:
		s.events.Publish(domain.ErrorEvent(id, message))
	case domain.JobCancelled:
		s.events.Publish(domain.ProgressEvent(id, percent, message))
	}
	s.notifyChange()
}

func (s *Scheduler) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}
