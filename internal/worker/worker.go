package worker

// JobType selects the work a pool worker performs.
type JobType string

const (
	Image JobType = "image"
	Video JobType = "video"
	Stop  JobType = "stop"
)

// Job is one background media generation for a message.
type Job struct {
	Type      JobType
	Email     string
	MessageID string
	Prompt    string
	workspace *Workspace
}

type Worker struct {
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			switch job.Type {
			case Stop:
				w.pool.retire(w.jobChannel)
				return
			case Image, Video:
				w.manager.handleMedia(job)
			}
		}
	}()
}
