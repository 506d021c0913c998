package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewloop/reviewloop/internal/logging"
)

// ErrQueueFull is returned when the task queue is at capacity.
var ErrQueueFull = errors.New("dispatch queue is full")

// Task is a unit of background work tied to a merge request.
type Task struct {
	Kind  string // "review" or "reply"
	Owner string
	Repo  string
	MRID  string
	Run   func(ctx context.Context) error
}

// Config configures the worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

type queuedTask struct {
	id   string
	task Task
}

// Pool runs queued tasks on a fixed set of supervised workers.
type Pool struct {
	cfg    Config
	logs   *logging.Writer
	queue  chan queuedTask
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates the pool and starts its workers. Pass a nil writer to
// skip per-task log files.
func NewPool(cfg Config, logs *logging.Writer) *Pool {
	if cfg.Workers == 0 {
		cfg.Workers = 5
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 20
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:    cfg,
		logs:   logs,
		queue:  make(chan queuedTask, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Enqueue hands a task to the pool without blocking. It returns the
// assigned task ID, or ErrQueueFull when the queue is at capacity.
func (p *Pool) Enqueue(task Task) (string, error) {
	id := uuid.NewString()
	select {
	case p.queue <- queuedTask{id: id, task: task}:
		return id, nil
	default:
		return "", ErrQueueFull
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case q := <-p.queue:
			p.run(q)
		}
	}
}

// run executes one task, capturing panics so a misbehaving task cannot
// take its worker down.
func (p *Pool) run(q queuedTask) {
	logPath := p.openLog(q)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Task %s (%s %s/%s!%s) panicked: %v", q.id, q.task.Kind, q.task.Owner, q.task.Repo, q.task.MRID, r)
			p.appendLog(logPath, "panic: %v\n%s", r, debug.Stack())
		}
	}()

	start := time.Now()
	err := q.task.Run(p.ctx)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		log.Printf("Task %s (%s %s/%s!%s) failed after %s: %v", q.id, q.task.Kind, q.task.Owner, q.task.Repo, q.task.MRID, elapsed, err)
		p.appendLog(logPath, "failed after %s: %v", elapsed, err)
		return
	}
	log.Printf("Task %s (%s %s/%s!%s) completed in %s", q.id, q.task.Kind, q.task.Owner, q.task.Repo, q.task.MRID, elapsed)
	p.appendLog(logPath, "completed in %s", elapsed)
}

func (p *Pool) openLog(q queuedTask) string {
	if p.logs == nil {
		return ""
	}
	path, err := p.logs.Create(logging.ReviewLog{
		TaskID:    q.id,
		Owner:     q.task.Owner,
		Repo:      q.task.Repo,
		MRID:      q.task.MRID,
		Kind:      q.task.Kind,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("Task %s: creating log file: %v", q.id, err)
		return ""
	}
	return path
}

func (p *Pool) appendLog(path, format string, args ...any) {
	if p.logs == nil || path == "" {
		return
	}
	if err := p.logs.Append(path, []byte(fmt.Sprintf(format+"\n", args...))); err != nil {
		log.Printf("Appending task log: %v", err)
	}
}

// QueueLength returns the current queue length.
func (p *Pool) QueueLength() int {
	return len(p.queue)
}

// Shutdown stops the workers and waits for in-flight tasks to finish.
// Tasks still sitting in the queue may be dropped.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
