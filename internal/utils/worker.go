package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool fans queued tasks out to a fixed set of workers tied to a tomb.
type WorkerPool struct {
	n     int
	tasks chan any
}

func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		n:     size,
		tasks: make(chan any, taskChanSize),
	}
}

// Setup starts the workers on the tomb. Workers drain the task channel
// until the tomb dies.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	for i := 0; i < pool.n; i++ {
		id := i
		t.Go(func() error {
			return pool.worker(t, id, work)
		})
	}
}

// AddTask queues a task for the next free worker, blocking while the
// channel is full.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// TryAddTask queues a task only if the channel has room. Workers that
// re-queue their own tasks must use this form; blocking there can wedge the
// whole pool once the channel fills.
func (pool *WorkerPool) TryAddTask(task any) bool {
	select {
	case pool.tasks <- task:
		return true
	default:
		return false
	}
}

func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
