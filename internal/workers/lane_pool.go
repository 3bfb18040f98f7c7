package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// ErrPoolStopped is returned by Submit once Stop has been called.
var ErrPoolStopped = errors.New("worker pool is shutting down")

type lane struct {
	tasks []func(context.Context)
}

// LanePool runs tasks on a bounded set of workers. Tasks submitted under the
// same key run one at a time in submission order; tasks under different keys
// run in parallel.
type LanePool struct {
	ctx        context.Context
	cancel     context.CancelFunc
	numWorkers int
	logger     *utils.LogsManager

	mu      sync.Mutex
	cond    *sync.Cond
	lanes   map[string]*lane
	ready   []string
	stopped bool
	wg      sync.WaitGroup
}

// NewLanePool creates a pool. Tasks receive a context that is cancelled by Stop.
func NewLanePool(ctx context.Context, numWorkers int, logger *utils.LogsManager) *LanePool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	poolCtx, cancel := context.WithCancel(ctx)

	lp := &LanePool{
		ctx:        poolCtx,
		cancel:     cancel,
		numWorkers: numWorkers,
		logger:     logger,
		lanes:      make(map[string]*lane),
	}
	lp.cond = sync.NewCond(&lp.mu)
	return lp
}

// Start launches the workers
func (lp *LanePool) Start() {
	lp.logger.Info(fmt.Sprintf("Starting lane pool with %d workers", lp.numWorkers), "workers")

	for i := 0; i < lp.numWorkers; i++ {
		lp.wg.Add(1)
		go lp.worker(i)
	}
}

func (lp *LanePool) worker(id int) {
	defer lp.wg.Done()

	for {
		key, task, ok := lp.next()
		if !ok {
			lp.logger.Debug(fmt.Sprintf("Worker %d stopping", id), "workers")
			return
		}

		lp.run(id, key, task)
		lp.finish(key)
	}
}

// next blocks until a lane is ready and takes its head task. Only one worker
// holds a given key at a time because a key is in ready at most once and is
// re-queued by finish only after its task returns.
func (lp *LanePool) next() (string, func(context.Context), bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	for len(lp.ready) == 0 {
		if lp.stopped {
			return "", nil, false
		}
		lp.cond.Wait()
	}

	key := lp.ready[0]
	lp.ready = lp.ready[1:]
	l := lp.lanes[key]
	task := l.tasks[0]
	l.tasks = l.tasks[1:]
	return key, task, true
}

func (lp *LanePool) finish(key string) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	l := lp.lanes[key]
	if len(l.tasks) == 0 {
		delete(lp.lanes, key)
		return
	}
	lp.ready = append(lp.ready, key)
	lp.cond.Signal()
}

func (lp *LanePool) run(id int, key string, task func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			lp.logger.Error(fmt.Sprintf("Worker %d panic recovered on lane %s: %v", id, key, r), "workers")
		}
	}()
	task(lp.ctx)
}

// Submit queues task on the lane for key.
func (lp *LanePool) Submit(key string, task func(ctx context.Context)) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.stopped {
		return ErrPoolStopped
	}

	if l, busy := lp.lanes[key]; busy {
		l.tasks = append(l.tasks, task)
		return nil
	}

	lp.lanes[key] = &lane{tasks: []func(context.Context){task}}
	lp.ready = append(lp.ready, key)
	lp.cond.Signal()
	return nil
}

// Pending returns the number of queued or running tasks.
func (lp *LanePool) Pending() int {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	n := 0
	for _, l := range lp.lanes {
		n += len(l.tasks)
	}
	return n + len(lp.lanes) - len(lp.ready)
}

// Stop refuses new tasks, cancels the task context and waits for the workers
// to drain what is already queued.
func (lp *LanePool) Stop() {
	lp.logger.Info("Stopping lane pool", "workers")

	lp.mu.Lock()
	lp.stopped = true
	lp.cond.Broadcast()
	lp.mu.Unlock()

	lp.cancel()
	lp.wg.Wait()

	lp.logger.Info("Lane pool stopped", "workers")
}

// GetActiveWorkers returns the number of workers
func (lp *LanePool) GetActiveWorkers() int {
	return lp.numWorkers
}
