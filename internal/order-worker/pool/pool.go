package pool

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-worker/tasks"
)

// ErrShuttingDown rejects submissions once shutdown has begun.
var ErrShuttingDown = errors.New("pool is shutting down")

// Pool runs a fixed number of executors draining a bounded task queue into a
// bounded result queue. Cancellation is cooperative: executors watch the
// pool context, and a task interrupted mid-wait is reported as pending_wait
// so the server can hand it out again.
type Pool struct {
	size      int
	taskQueue chan *tasks.Execution
	results   chan *models.TaskExecution
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	accepting atomic.Bool
}

func New(size int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		size:      size,
		taskQueue: make(chan *tasks.Execution, size*2),
		results:   make(chan *models.TaskExecution, size*2),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.accepting.Store(true)
	return p
}

// Results is the outbound queue of execution states to report.
func (p *Pool) Results() <-chan *models.TaskExecution { return p.results }

// Submit queues an execution, rejecting new work during shutdown.
func (p *Pool) Submit(e *tasks.Execution) error {
	if !p.accepting.Load() {
		return ErrShuttingDown
	}
	select {
	case p.taskQueue <- e:
		return nil
	case <-p.ctx.Done():
		return ErrShuttingDown
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.executor(i)
	}
	log.Printf("Started %d executors", p.size)
}

// Stop rejects further submissions, signals all executors and joins them.
// The result queue is drained concurrently with the join: executors blocked
// on a push (including the final pending_wait push of an interrupted wait)
// always complete, whether or not a consumer is still reading.
func (p *Pool) Stop() {
	p.accepting.Store(false)
	p.cancel()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for res := range p.results {
			log.Printf("Undelivered result: task %s status %s", res.UUID, res.Status)
		}
	}()
	p.wg.Wait()
	log.Println("All executors stopped, emptying the result queue")
	close(p.results)
	<-drained
}

func (p *Pool) executor(id int) {
	defer p.wg.Done()
	log.Printf("[E%d] Starting executor", id)
	for {
		select {
		case <-p.ctx.Done():
			log.Printf("[E%d] Stopped executor", id)
			return
		case e := <-p.taskQueue:
			res := e.Execute(p.ctx)
			p.push(res)
			if res.Status == models.TaskWaiting {
				p.waitLoop(id, e)
			}
		}
	}
}

// waitLoop polls a waiting task: sleep wait_time seconds (watching the
// shutdown signal second by second), re-invoke the wait check, report the
// refreshed state, bounded by max_wait_time iterations.
func (p *Pool) waitLoop(id int, e *tasks.Execution) {
	count := 0
	for e.Exec().Status == models.TaskWaiting {
		waitTime := e.Exec().WaitTime
		if waitTime <= 0 {
			waitTime = models.DefaultWaitTime
		}
		for i := 0; i < waitTime; i++ {
			select {
			case <-p.ctx.Done():
				// Abandoned mid-wait: resumable on the server side, not lost.
				log.Printf("[E%d] Shutdown during wait, task %s left pending_wait", id, e.Exec().UUID)
				e.Exec().Status = models.TaskPendingWait
				p.push(e.Exec())
				return
			case <-time.After(time.Second):
			}
		}
		count++
		e.Execute(p.ctx)
		if max := e.Exec().MaxWaitTime; max != nil && count >= *max && e.Exec().Status == models.TaskWaiting {
			e.Exec().Status = models.TaskErrored
			e.Exec().Error = "Max wait time reached"
			now := time.Now()
			e.Exec().CompletedAt = &now
			p.push(e.Exec())
			return
		}
		p.push(e.Exec())
	}
}

// push blocks until the report is queued. A full queue applies backpressure
// to the executor instead of losing the report; Stop's drain releases any
// push still blocked at shutdown.
func (p *Pool) push(res *models.TaskExecution) {
	p.results <- res.Clone()
}
