package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aviator-tracker-go/internal/input"
	"aviator-tracker-go/internal/regions"
)

// BetRequest asks the controller to place one bet on a bookmaker's window.
type BetRequest struct {
	Bookmaker    string
	Amount       float64
	AutoStop     float64
	AmountCoords regions.Point
	ButtonCoords regions.Point
}

// BetResult is the outcome delivered through the handle.
type BetResult struct {
	Placed   bool
	Err      error
	Duration time.Duration
}

// BetHandle is the single-use completion signal for one submitted request.
type BetHandle struct {
	done chan BetResult
}

// Wait blocks until the executor signals completion. The controller always
// signals exactly once per accepted request, including during shutdown.
func (h *BetHandle) Wait(ctx context.Context) (BetResult, error) {
	select {
	case res := <-h.done:
		return res, nil
	case <-ctx.Done():
		return BetResult{}, ctx.Err()
	}
}

// BetExecutor performs the actual click/type sequence. Out of scope here; the
// cmd wires a simulator or the real GUI driver.
type BetExecutor func(ctx context.Context, req *BetRequest) error

type betTask struct {
	req    *BetRequest
	handle *BetHandle
}

// BetController serializes the side-effecting bet action across all
// producers: a single executor goroutine, fed by a bounded channel, holds the
// input-device lock for exactly one request at a time. Channel order gives
// fairness between producers without them coordinating directly.
type BetController struct {
	requests chan *betTask
	exec     BetExecutor
	devices  *input.DeviceLock
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewBetController(capacity int, devices *input.DeviceLock, exec BetExecutor) *BetController {
	if capacity <= 0 {
		capacity = 100
	}
	return &BetController{
		requests: make(chan *betTask, capacity),
		exec:     exec,
		devices:  devices,
		logger:   slog.Default(),
		inFlight: make(map[string]struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *BetController) Start() {
	c.logger.Info("🎰 BetController: started", "queue_cap", cap(c.requests))
	go c.run()
}

// Submit enqueues a request and returns its completion handle. A bookmaker
// may have at most one request outstanding; a second submit before the first
// completes is rejected rather than silently queued.
//
// Acceptance and Stop are serialized on c.mu: a request either lands in the
// queue before Stop marks the controller closed (and the shutdown drain will
// fail it), or is rejected here. No accepted handle can miss its signal.
func (c *BetController) Submit(req *BetRequest) (*BetHandle, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		prom().betsRejected.Inc()
		return nil, ErrShuttingDown
	}
	if _, dup := c.inFlight[req.Bookmaker]; dup {
		c.mu.Unlock()
		prom().betsRejected.Inc()
		return nil, ErrBetInFlight
	}

	task := &betTask{req: req, handle: &BetHandle{done: make(chan BetResult, 1)}}
	select {
	case c.requests <- task:
		c.inFlight[req.Bookmaker] = struct{}{}
		c.mu.Unlock()
		return task.handle, nil
	default:
		c.mu.Unlock()
		prom().betsRejected.Inc()
		return nil, ErrQueueSaturated
	}
}

// Stop signals shutdown and waits for the executor to finish its current
// action and fail-fast the rest of the queue. The closed flag is set before
// the channel closes, so once run observes the signal no further send can
// land in the queue.
func (c *BetController) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.shutdown)
	})
	<-c.done
}

func (c *BetController) run() {
	defer close(c.done)

	for {
		select {
		case <-c.shutdown:
			c.drainAndFail()
			c.logger.Info("🎰 BetController: stopped")
			return
		case task := <-c.requests:
			// Never start a new action once shutdown is signalled, even if
			// both cases were ready.
			select {
			case <-c.shutdown:
				c.fail(task, ErrShuttingDown)
				continue
			default:
			}
			c.execute(task)
		}
	}
}

// execute runs one request under the device lock and signals its handle
// strictly before the next request is dequeued.
func (c *BetController) execute(task *betTask) {
	req := task.req
	start := time.Now()

	c.devices.Lock()
	err := c.exec(context.Background(), req)
	c.devices.Unlock()

	dur := time.Since(start)
	c.clearInFlight(req.Bookmaker)

	if err != nil {
		prom().betsFailed.Inc()
		c.logger.Error("✗ Bet failed", "bookmaker", req.Bookmaker, "amount", req.Amount, "err", err)
	} else {
		prom().betsPlaced.Inc()
		c.logger.Info("✓ Bet placed", "bookmaker", req.Bookmaker, "amount", req.Amount, "dur", dur)
	}

	task.handle.done <- BetResult{Placed: err == nil, Err: err, Duration: dur}
}

func (c *BetController) drainAndFail() {
	for {
		select {
		case task := <-c.requests:
			c.fail(task, ErrShuttingDown)
		default:
			return
		}
	}
}

func (c *BetController) fail(task *betTask, err error) {
	c.clearInFlight(task.req.Bookmaker)
	prom().betsRejected.Inc()
	task.handle.done <- BetResult{Placed: false, Err: err}
}

func (c *BetController) clearInFlight(bookmaker string) {
	c.mu.Lock()
	delete(c.inFlight, bookmaker)
	c.mu.Unlock()
}
