package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"squish/internal/logging"
	"squish/internal/services"
)

// DefaultInitTimeout bounds how long Initialize waits for all units to
// signal ready. It is the only timeout in the pool; individual jobs are not
// time-boxed.
const DefaultInitTimeout = 10 * time.Second

type initState int

const (
	stateUninitialized initState = iota
	stateInitializing
	stateReady
)

// Status reports pool occupancy for observability.
type Status struct {
	TotalUnits  int
	BusyUnits   int
	WaitingJobs int
}

// Pool is a bounded, crash-tolerant, FIFO-fair dispatch surface over N
// parallel execution units. All bookkeeping (worker list, waiting queue,
// correlation table) is owned by a single dispatch goroutine; callers reach
// it only through channels.
type Pool struct {
	size        int
	initTimeout time.Duration
	factory     UnitFactory
	logger      *slog.Logger

	mu       sync.Mutex
	state    initState
	initDone chan struct{}
	initErr  error

	units      []ExecutionUnit
	messages   chan Message
	submits    chan *Job
	statusCh   chan chan Status
	withdrawCh chan withdrawRequest
	done       chan struct{}
}

type withdrawRequest struct {
	jobID string
	reply chan bool
}

// Option configures optional pool behavior.
type Option func(*Pool)

// WithInitTimeout overrides the unit-readiness wait bound.
func WithInitTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.initTimeout = d
		}
	}
}

// New constructs a pool of the given size. Units are not spawned until
// Initialize or the first Submit.
func New(size int, factory UnitFactory, logger *slog.Logger, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:        size,
		initTimeout: DefaultInitTimeout,
		factory:     factory,
		logger:      logging.NewComponentLogger(logger, "pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the configured unit count.
func (p *Pool) Size() int {
	return p.size
}

// Initialize spawns all configured units in parallel and waits for them to
// signal ready. It is idempotent and safe under concurrent callers: when
// already ready it is a no-op, and a caller arriving during an in-flight
// initialization waits on that attempt rather than starting a second one. A
// timeout leaves the pool uninitialized so a later retry can succeed.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	for p.state != stateUninitialized {
		if p.state == stateReady {
			p.mu.Unlock()
			return nil
		}
		waitCh := p.initDone
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waitCh:
		}
		p.mu.Lock()
		if p.state == stateReady {
			p.mu.Unlock()
			return nil
		}
		if p.initDone == waitCh {
			// The attempt waited on failed and nothing replaced it yet.
			err := p.initErr
			p.mu.Unlock()
			return err
		}
		// A fresh attempt superseded the one waited on; initErr no longer
		// belongs to it. Observe the new attempt instead.
	}

	p.state = stateInitializing
	p.initDone = make(chan struct{})
	p.initErr = nil
	doneCh := p.initDone
	p.mu.Unlock()

	err := p.spawnUnits(ctx)

	p.mu.Lock()
	if err != nil {
		p.state = stateUninitialized
		p.initErr = err
	} else {
		p.state = stateReady
	}
	close(doneCh)
	p.mu.Unlock()
	return err
}

func (p *Pool) spawnUnits(ctx context.Context) error {
	messages := make(chan Message, p.size*8)
	units := make([]ExecutionUnit, p.size)
	for i := range units {
		units[i] = p.factory(i, messages)
	}

	startCtx, cancel := context.WithTimeout(ctx, p.initTimeout)
	defer cancel()

	ready := make(chan error, p.size)
	for _, unit := range units {
		go func(unit ExecutionUnit) {
			ready <- unit.Start(startCtx)
		}(unit)
	}

	for i := 0; i < p.size; i++ {
		select {
		case err := <-ready:
			if err != nil {
				stopUnits(units)
				return services.Wrap(services.ErrConfiguration, "pool", "initialize", "unit start failed", err)
			}
		case <-startCtx.Done():
			stopUnits(units)
			return services.Wrap(services.ErrTimeout, "pool", "initialize",
				fmt.Sprintf("units not ready within %s", p.initTimeout), startCtx.Err())
		}
	}

	workers := make([]*poolWorker, p.size)
	for i, unit := range units {
		workers[i] = &poolWorker{id: i, unit: unit}
	}

	p.mu.Lock()
	p.units = units
	p.messages = messages
	p.submits = make(chan *Job)
	p.statusCh = make(chan chan Status)
	p.withdrawCh = make(chan withdrawRequest)
	p.done = make(chan struct{})
	submits, statusCh, withdrawCh, done := p.submits, p.statusCh, p.withdrawCh, p.done
	p.mu.Unlock()

	go p.run(workers, messages, submits, statusCh, withdrawCh, done)

	p.logger.Info("pool ready", logging.Int("units", p.size))
	return nil
}

func stopUnits(units []ExecutionUnit) {
	for _, unit := range units {
		unit.Stop()
	}
}

// Submit dispatches a job to a free unit, or queues it at the tail of the
// waiting collection when every unit is busy. Initialization is triggered
// first if needed; its failure is the only error reported here. Per-job
// failures are reported exclusively through the job's own error callback.
func (p *Pool) Submit(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return services.Wrap(services.ErrConfiguration, "pool", "submit", "job missing identity", nil)
	}
	if err := p.Initialize(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	submits, done := p.submits, p.done
	p.mu.Unlock()
	if submits == nil {
		return errors.New("pool terminated")
	}

	select {
	case submits <- job:
		return nil
	case <-done:
		return errors.New("pool terminated")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate releases every unit, clears the waiting collection and the
// correlation table, and resets initialization state. Jobs still waiting or
// in flight receive their error callback. The pool can be initialized again
// afterwards.
func (p *Pool) Terminate() {
	p.mu.Lock()
	done := p.done
	units := p.units
	p.state = stateUninitialized
	p.initErr = nil
	p.units = nil
	p.messages = nil
	p.submits = nil
	p.statusCh = nil
	p.withdrawCh = nil
	p.done = nil
	p.mu.Unlock()

	if done != nil {
		close(done)
	}
	stopUnits(units)
}

// Status reports total units, busy-unit count, and waiting-job count. An
// uninitialized pool reports zeros.
func (p *Pool) Status() Status {
	p.mu.Lock()
	statusCh, done := p.statusCh, p.done
	p.mu.Unlock()
	if statusCh == nil {
		return Status{}
	}

	reply := make(chan Status, 1)
	select {
	case statusCh <- reply:
	case <-done:
		return Status{}
	}
	select {
	case status := <-reply:
		return status
	case <-done:
		return Status{}
	}
}

// Withdraw removes a job from the waiting collection before it reaches a
// unit. It reports false when the job is already in flight (or unknown), in
// which case it is left to finish or fail on its own.
func (p *Pool) Withdraw(jobID string) bool {
	p.mu.Lock()
	withdrawCh, done := p.withdrawCh, p.done
	p.mu.Unlock()
	if withdrawCh == nil {
		return false
	}

	request := withdrawRequest{jobID: jobID, reply: make(chan bool, 1)}
	select {
	case withdrawCh <- request:
	case <-done:
		return false
	}
	select {
	case withdrawn := <-request.reply:
		return withdrawn
	case <-done:
		return false
	}
}

type poolWorker struct {
	id    int
	unit  ExecutionUnit
	busy  bool
	jobID string
}

// run owns every piece of dispatch state. Nothing outside this goroutine
// touches workers, waiting, or inflight.
func (p *Pool) run(workers []*poolWorker, messages <-chan Message, submits <-chan *Job, statusCh <-chan chan Status, withdrawCh <-chan withdrawRequest, done <-chan struct{}) {
	waiting := make([]*Job, 0)
	inflight := make(map[string]*Job)

	for {
		select {
		case <-done:
			failHeldJobs(waiting, inflight)
			return
		case job := <-submits:
			if worker := freeWorker(workers); worker != nil {
				dispatch(worker, job, inflight)
			} else {
				waiting = append(waiting, job)
			}
		case msg := <-messages:
			waiting = p.handleMessage(workers, waiting, inflight, msg)
		case request := <-withdrawCh:
			withdrawn := false
			for i, job := range waiting {
				if job.ID == request.jobID {
					waiting = append(waiting[:i], waiting[i+1:]...)
					withdrawn = true
					break
				}
			}
			request.reply <- withdrawn
		case reply := <-statusCh:
			busy := 0
			for _, worker := range workers {
				if worker.busy {
					busy++
				}
			}
			reply <- Status{TotalUnits: len(workers), BusyUnits: busy, WaitingJobs: len(waiting)}
		}
	}
}

// failHeldJobs delivers the terminal error callback for jobs the dispatcher
// still holds at shutdown, so no caller blocks on a job the pool will never
// report again.
func failHeldJobs(waiting []*Job, inflight map[string]*Job) {
	err := services.Wrap(services.ErrCancelled, "pool", "terminate", "pool terminated", nil)
	for _, job := range waiting {
		if job.OnError != nil {
			job.OnError(err)
		}
	}
	for _, job := range inflight {
		if job.OnError != nil {
			job.OnError(err)
		}
	}
}

func (p *Pool) handleMessage(workers []*poolWorker, waiting []*Job, inflight map[string]*Job, msg Message) []*Job {
	job, ok := inflight[msg.JobID]
	if !ok {
		// Late or duplicate report; nothing to correlate it with.
		p.logger.Debug("dropping message for unknown job",
			logging.String("job", msg.JobID),
			logging.Int("unit", msg.UnitID),
		)
		return waiting
	}

	switch msg.Kind {
	case msgProgress:
		if job.OnProgress != nil {
			job.OnProgress(msg.Percent)
		}
		return waiting
	case msgCompleted:
		if job.OnComplete != nil {
			job.OnComplete(msg.Result)
		}
	case msgFailed:
		if job.OnError != nil {
			job.OnError(msg.Err)
		}
	case msgCrashed:
		err := msg.Err
		if !errors.Is(err, services.ErrWorkerCrash) {
			err = services.Wrap(services.ErrWorkerCrash, "pool", "encode",
				fmt.Sprintf("unit %d fault", msg.UnitID), err)
		}
		p.logger.Warn("execution unit fault",
			logging.Int("unit", msg.UnitID),
			logging.String("job", msg.JobID),
			logging.Error(msg.Err),
		)
		if job.OnError != nil {
			job.OnError(err)
		}
	}

	delete(inflight, msg.JobID)
	worker := workerByID(workers, msg.UnitID)
	if worker != nil {
		worker.busy = false
		worker.jobID = ""
		if len(waiting) > 0 {
			next := waiting[0]
			waiting = waiting[1:]
			dispatch(worker, next, inflight)
		}
	}
	return waiting
}

func freeWorker(workers []*poolWorker) *poolWorker {
	for _, worker := range workers {
		if !worker.busy {
			return worker
		}
	}
	return nil
}

func workerByID(workers []*poolWorker, id int) *poolWorker {
	for _, worker := range workers {
		if worker.id == id {
			return worker
		}
	}
	return nil
}

func dispatch(worker *poolWorker, job *Job, inflight map[string]*Job) {
	worker.busy = true
	worker.jobID = job.ID
	inflight[job.ID] = job
	worker.unit.Submit(Request{
		JobID:        job.ID,
		Input:        job.Input,
		InputFormat:  job.InputFormat,
		OutputFormat: job.OutputFormat,
		Quality:      job.Quality,
		Lossless:     job.Lossless,
	})
	// Ownership of job.Input has moved to the unit.
	job.Input = nil
}
