package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrQueueFull     = errors.New("match queue is full")
	ErrWorkerStopped = errors.New("worker stopped")
)

type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

type MatchTask struct {
	ID         string     `json:"task_id"`
	CVID       string     `json:"cv_id"`
	JobID      string     `json:"job_id"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Worker runs queued matches in the background and purges expired cache
// entries on a ticker.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	Enqueue(cmd MatchCommand) (string, error)
	Task(id string) (MatchTask, bool)
}

type queuedMatch struct {
	id  string
	cmd MatchCommand
}

type worker struct {
	service       MatchService
	queue         chan queuedMatch
	concurrency   int
	purgeInterval time.Duration
	taskTTL       time.Duration
	log           *zap.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	mu    sync.RWMutex
	tasks map[string]*MatchTask
}

func NewWorker(service MatchService, concurrency, queueSize int, purgeInterval time.Duration, log *zap.Logger) Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &worker{
		service:       service,
		queue:         make(chan queuedMatch, queueSize),
		concurrency:   concurrency,
		purgeInterval: purgeInterval,
		taskTTL:       time.Hour,
		log:           log.Named("worker"),
		stopChan:      make(chan struct{}),
		tasks:         make(map[string]*MatchTask),
	}
}

func (w *worker) Start(ctx context.Context) {
	w.log.Info("starting worker", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processMatches(ctx, i+1)
	}

	if w.purgeInterval > 0 {
		w.wg.Add(1)
		go w.purgeExpired(ctx)
	}
}

func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.log.Info("stopping worker")
		close(w.stopChan)
	})
	w.wg.Wait()
	w.log.Info("worker stopped")
}

// Enqueue never blocks: a full queue is reported as ErrQueueFull.
func (w *worker) Enqueue(cmd MatchCommand) (string, error) {
	select {
	case <-w.stopChan:
		return "", ErrWorkerStopped
	default:
	}

	id := uuid.NewString()
	task := &MatchTask{ID: id, CVID: cmd.CVID, JobID: cmd.JobID, Status: TaskQueued, EnqueuedAt: time.Now().UTC()}

	w.mu.Lock()
	w.tasks[id] = task
	w.mu.Unlock()

	select {
	case w.queue <- queuedMatch{id: id, cmd: cmd}:
		w.log.Debug("match enqueued", zap.String("task_id", id))
		return id, nil
	default:
		w.mu.Lock()
		delete(w.tasks, id)
		w.mu.Unlock()
		return "", ErrQueueFull
	}
}

func (w *worker) Task(id string) (MatchTask, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	task, ok := w.tasks[id]
	if !ok {
		return MatchTask{}, false
	}
	return *task, true
}

func (w *worker) setStatus(id string, status TaskStatus, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	task, ok := w.tasks[id]
	if !ok {
		return
	}
	task.Status = status
	if err != nil {
		task.Error = err.Error()
		task.Kind = KindName(err)
	}
	if status == TaskCompleted || status == TaskFailed {
		task.FinishedAt = time.Now().UTC()
	}
}

func (w *worker) processMatches(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.log.With(zap.Int("worker_id", workerID))

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case job := <-w.queue:
			w.setStatus(job.id, TaskRunning, nil)

			if _, err := w.service.Match(ctx, job.cmd); err != nil {
				log.Warn("queued match failed", zap.String("task_id", job.id), zap.Error(err))
				w.setStatus(job.id, TaskFailed, err)
				continue
			}

			log.Debug("queued match completed", zap.String("task_id", job.id))
			w.setStatus(job.id, TaskCompleted, nil)
		}
	}
}

func (w *worker) purgeExpired(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.service.Purge(ctx); err != nil {
				w.log.Warn("failed to purge expired cache entries", zap.Error(err))
			}
			w.forgetTasks(time.Now().UTC())
		}
	}
}

// forgetTasks drops finished tasks older than taskTTL.
func (w *worker) forgetTasks(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, task := range w.tasks {
		if !task.FinishedAt.IsZero() && now.Sub(task.FinishedAt) > w.taskTTL {
			delete(w.tasks, id)
		}
	}
}
