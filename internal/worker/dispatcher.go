package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrDispatcherBusy rejects a job when the intake queue is full.
var ErrDispatcherBusy = errors.New("media queue is full, try again later")

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher hands jobs to the pool one user at a time, round robin, so that
// one user queuing many videos does not starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // intake for outer jobs

	mu        sync.Mutex
	queues    map[string]*userQueue // pending jobs per user
	ready     *list.List            // LRU of users with pending jobs
	positions map[string]*list.Element
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(minWorkers, maxWorkers, idleTimeout, manager),
		JobQueue:  make(chan Job, queueSize),
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		done:      make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.done:
		return ErrDispatcherBusy
	default:
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the user at the front of the LRU
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.done:
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.done:
			return
		default:
		}
	}
}

// CancelUser drops every job of email that has not started yet.
func (d *Dispatcher) CancelUser(email string) []Job {
	d.mu.Lock()
	defer d.mu.Unlock()

	var dropped []Job
	if q, ok := d.queues[email]; ok {
		dropped = q.jobs
	}
	delete(d.queues, email)
	if elem, ok := d.positions[email]; ok {
		d.ready.Remove(elem)
		delete(d.positions, email)
	}
	return dropped
}

// Close stops dispatching and the worker pool.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.pool.close()
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Email]
	if q == nil {
		q = &userQueue{}
		d.queues[job.Email] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Email] = d.ready.PushBack(job.Email)
}

// dispatchOne sends the next job of the least recently served user.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	email := elem.Value.(string)
	q := d.queues[email]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, email)
		delete(d.queues, email)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		clearLoading(job)
		return false
	}
	debugLog("[dispatcher] assign %s job for %s message %s", job.Type, email, job.MessageID)
	workerChan <- job
	return true
}
