package downloader

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyQueued = errors.New("url already queued or downloading")
	ErrPoolStopped   = errors.New("download pool is stopped")
)

// JobStatus represents the status of a queued download
type JobStatus int

const (
	JobQueued JobStatus = iota
	JobRunning
	JobCompleted
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job is a queued download request and, once finished, its outcome
type Job struct {
	Request    Request
	Task       *Task
	Err        error
	Status     JobStatus
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pool runs queued requests on a fixed set of downloaders, one request per
// downloader at a time
type Pool struct {
	mu       sync.Mutex
	workers  []*Downloader
	queue    []*Job
	active   map[string]*Job
	onDone   func(*Job)
	notify   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	workerWg sync.WaitGroup
	pending  sync.WaitGroup
	running  bool
}

// NewPool creates a pool over workers. onDone, when set, is called after
// every finished job.
func NewPool(workers []*Downloader, onDone func(*Job)) *Pool {
	return &Pool{
		workers: workers,
		active:  make(map[string]*Job),
		onDone:  onDone,
		notify:  make(chan struct{}, 1),
	}
}

// Start starts one goroutine per downloader
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for _, d := range p.workers {
		p.workerWg.Add(1)
		go p.worker(d)
	}
}

// Stop cancels running downloads and waits for the workers to exit.
// Jobs still queued are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}

	p.cancel()
	p.running = false
	dropped := p.queue
	p.queue = nil
	p.mu.Unlock()

	for range dropped {
		p.pending.Done()
	}

	p.workerWg.Wait()
}

// Queue adds req to the queue
func (p *Pool) Queue(req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrPoolStopped
	}

	if _, ok := p.active[req.URL]; ok {
		return ErrAlreadyQueued
	}
	for _, job := range p.queue {
		if job.Request.URL == req.URL {
			return ErrAlreadyQueued
		}
	}

	p.queue = append(p.queue, &Job{
		Request:  req,
		Status:   JobQueued,
		QueuedAt: time.Now(),
	})
	p.pending.Add(1)

	select {
	case p.notify <- struct{}{}:
	default:
	}

	return nil
}

// Wait blocks until every queued job has finished
func (p *Pool) Wait() {
	p.pending.Wait()
}

// GetQueueLength returns the number of queued jobs
func (p *Pool) GetQueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// GetActiveDownloads returns the number of running jobs
func (p *Pool) GetActiveDownloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *Pool) worker(d *Downloader) {
	defer p.workerWg.Done()

	for {
		job := p.dequeue()
		if job == nil {
			select {
			case <-p.ctx.Done():
				return
			case <-p.notify:
				continue
			}
		}

		p.process(d, job)
	}
}

func (p *Pool) dequeue() *Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 || p.ctx.Err() != nil {
		return nil
	}

	job := p.queue[0]
	p.queue = p.queue[1:]

	// Wake another idle worker for the rest of the queue
	if len(p.queue) > 0 {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}

	job.Status = JobRunning
	job.StartedAt = time.Now()
	p.active[job.Request.URL] = job

	return job
}

func (p *Pool) process(d *Downloader, job *Job) {
	defer p.pending.Done()

	task, err := d.ExecuteDownload(p.ctx, job.Request)

	p.mu.Lock()
	delete(p.active, job.Request.URL)
	job.Task = task
	job.Err = err
	job.FinishedAt = time.Now()
	if err != nil {
		job.Status = JobFailed
	} else {
		job.Status = JobCompleted
	}
	p.mu.Unlock()

	if p.onDone != nil {
		p.onDone(job)
	}
}
