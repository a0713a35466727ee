package pool_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"squish/internal/codec"
	"squish/internal/logging"
	"squish/internal/pool"
	"squish/internal/services"
)

// fakeUnit is a controllable execution unit: tests observe dispatched
// requests through the requests channel and complete them by writing
// messages to the pool's message channel.
type fakeUnit struct {
	id         int
	startDelay time.Duration
	startErr   error
	requests   chan pool.Request
}

func (u *fakeUnit) Start(context.Context) error {
	if u.startErr != nil {
		return u.startErr
	}
	if u.startDelay > 0 {
		time.Sleep(u.startDelay)
	}
	return nil
}

func (u *fakeUnit) Submit(request pool.Request) { u.requests <- request }

func (u *fakeUnit) Stop() {}

type fakeCluster struct {
	mu         sync.Mutex
	startDelay time.Duration
	units      []*fakeUnit
	messages   chan<- pool.Message
	created    int
}

func (c *fakeCluster) factory(id int, messages chan<- pool.Message) pool.ExecutionUnit {
	c.mu.Lock()
	defer c.mu.Unlock()
	unit := &fakeUnit{id: id, startDelay: c.startDelay, requests: make(chan pool.Request, 16)}
	c.units = append(c.units, unit)
	c.messages = messages
	c.created++
	return unit
}

func (c *fakeCluster) createdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

func (c *fakeCluster) unit(i int) *fakeUnit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.units[i]
}

func (c *fakeCluster) send(msg pool.Message) {
	c.mu.Lock()
	messages := c.messages
	c.mu.Unlock()
	messages <- msg
}

func awaitRequest(t *testing.T, unit *fakeUnit) pool.Request {
	t.Helper()
	select {
	case request := <-unit.requests:
		return request
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return pool.Request{}
	}
}

func awaitEvent(t *testing.T, events <-chan string) string {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
		return ""
	}
}

func makeJob(id string, events chan<- string) *pool.Job {
	return &pool.Job{
		ID:           id,
		Input:        []byte{0x1},
		InputFormat:  codec.FormatPNG,
		OutputFormat: codec.FormatJPEG,
		Quality:      80,
		OnComplete: func(codec.EncodeResult) {
			events <- "complete:" + id
		},
		OnError: func(err error) {
			events <- "error:" + id
		},
	}
}

func TestSubmitDispatchesToFreeUnit(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(2, cluster.factory, logging.NewNop())
	defer p.Terminate()

	events := make(chan string, 8)
	if err := p.Submit(context.Background(), makeJob("a#0", events)); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	request := awaitRequest(t, cluster.unit(0))
	if request.JobID != "a#0" {
		t.Fatalf("unexpected job: %q", request.JobID)
	}

	cluster.send(pool.CompletedMessage(0, "a#0", codec.EncodeResult{Mime: "image/jpeg"}))
	if event := awaitEvent(t, events); event != "complete:a#0" {
		t.Fatalf("unexpected event: %q", event)
	}

	status := p.Status()
	if status.TotalUnits != 2 || status.BusyUnits != 0 || status.WaitingJobs != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestFIFOOrderWithSingleUnit(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(1, cluster.factory, logging.NewNop())
	defer p.Terminate()

	ctx := context.Background()
	events := make(chan string, 8)
	for _, id := range []string{"a#0", "b#0", "c#0"} {
		if err := p.Submit(ctx, makeJob(id, events)); err != nil {
			t.Fatalf("Submit %s returned error: %v", id, err)
		}
	}

	status := p.Status()
	if status.BusyUnits != 1 || status.WaitingJobs != 2 {
		t.Fatalf("unexpected status while queued: %+v", status)
	}

	unit := cluster.unit(0)
	for _, want := range []string{"a#0", "b#0", "c#0"} {
		request := awaitRequest(t, unit)
		if request.JobID != want {
			t.Fatalf("dispatch out of order: got %q want %q", request.JobID, want)
		}
		cluster.send(pool.CompletedMessage(0, want, codec.EncodeResult{}))
		if event := awaitEvent(t, events); event != "complete:"+want {
			t.Fatalf("unexpected event: %q", event)
		}
	}

	status = p.Status()
	if status.BusyUnits != 0 || status.WaitingJobs != 0 {
		t.Fatalf("unexpected final status: %+v", status)
	}
}

func TestExactlyOneTerminalCallbackPerJob(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(2, cluster.factory, logging.NewNop())
	defer p.Terminate()

	ctx := context.Background()
	events := make(chan string, 32)
	const jobs = 6
	for i := 0; i < jobs; i++ {
		if err := p.Submit(ctx, makeJob(fmt.Sprintf("j%d#0", i), events)); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}

	completed := make(map[string]int)
	finished := 0
	for finished < jobs {
		progressed := false
		for unitID := 0; unitID < 2; unitID++ {
			select {
			case request := <-cluster.unit(unitID).requests:
				cluster.send(pool.CompletedMessage(unitID, request.JobID, codec.EncodeResult{}))
				event := awaitEvent(t, events)
				completed[event]++
				finished++
				progressed = true
			default:
			}
		}
		if !progressed {
			time.Sleep(5 * time.Millisecond)
		}
	}

	if len(completed) != jobs {
		t.Fatalf("expected %d distinct callbacks, got %v", jobs, completed)
	}
	for event, count := range completed {
		if count != 1 {
			t.Fatalf("duplicate callback for %q: %d", event, count)
		}
	}
}

func TestUnitFaultFailsOnlyHeldJob(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(1, cluster.factory, logging.NewNop())
	defer p.Terminate()

	ctx := context.Background()
	events := make(chan string, 8)
	errs := make(chan error, 1)
	crashing := makeJob("crash#0", events)
	crashing.OnError = func(err error) {
		errs <- err
		events <- "error:crash#0"
	}
	if err := p.Submit(ctx, crashing); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if err := p.Submit(ctx, makeJob("next#0", events)); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	unit := cluster.unit(0)
	awaitRequest(t, unit)
	cluster.send(pool.CrashedMessage(0, "crash#0", errors.New("worker died")))

	if event := awaitEvent(t, events); event != "error:crash#0" {
		t.Fatalf("unexpected event: %q", event)
	}
	if err := <-errs; !errors.Is(err, services.ErrWorkerCrash) {
		t.Fatalf("expected worker-crash classification, got %v", err)
	}

	// The freed unit services the waiting queue as in normal completion.
	request := awaitRequest(t, unit)
	if request.JobID != "next#0" {
		t.Fatalf("expected queued job after fault, got %q", request.JobID)
	}
	cluster.send(pool.CompletedMessage(0, "next#0", codec.EncodeResult{}))
	if event := awaitEvent(t, events); event != "complete:next#0" {
		t.Fatalf("unexpected event: %q", event)
	}
}

func TestProgressMessageMakesNoStateChange(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(1, cluster.factory, logging.NewNop())
	defer p.Terminate()

	events := make(chan string, 8)
	progress := make(chan int, 4)
	job := makeJob("a#0", events)
	job.OnProgress = func(percent int) { progress <- percent }
	if err := p.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	awaitRequest(t, cluster.unit(0))

	cluster.send(pool.ProgressMessage(0, "a#0", 40))
	select {
	case percent := <-progress:
		if percent != 40 {
			t.Fatalf("unexpected percent: %d", percent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("progress callback not invoked")
	}

	status := p.Status()
	if status.BusyUnits != 1 {
		t.Fatalf("progress should not free the unit: %+v", status)
	}
	cluster.send(pool.CompletedMessage(0, "a#0", codec.EncodeResult{}))
	awaitEvent(t, events)
}

func TestUnknownJobMessageDropped(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(1, cluster.factory, logging.NewNop())
	defer p.Terminate()

	events := make(chan string, 8)
	if err := p.Submit(context.Background(), makeJob("a#0", events)); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	awaitRequest(t, cluster.unit(0))

	cluster.send(pool.CompletedMessage(0, "ghost#9", codec.EncodeResult{}))
	cluster.send(pool.CompletedMessage(0, "a#0", codec.EncodeResult{}))
	if event := awaitEvent(t, events); event != "complete:a#0" {
		t.Fatalf("unexpected event: %q", event)
	}
	select {
	case event := <-events:
		t.Fatalf("unexpected extra callback: %q", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInitializeTimeoutLeavesPoolRetryable(t *testing.T) {
	cluster := &fakeCluster{startDelay: 500 * time.Millisecond}
	p := pool.New(2, cluster.factory, logging.NewNop(), pool.WithInitTimeout(20*time.Millisecond))
	defer p.Terminate()

	err := p.Initialize(context.Background())
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}

	cluster.mu.Lock()
	cluster.startDelay = 0
	cluster.mu.Unlock()

	// Wait out the stragglers from the failed attempt, then retry.
	time.Sleep(600 * time.Millisecond)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("retry after timeout failed: %v", err)
	}
	status := p.Status()
	if status.TotalUnits != 2 {
		t.Fatalf("unexpected status after retry: %+v", status)
	}
}

func TestInitializeWaiterNeverReportsReadyAfterFailedAttempt(t *testing.T) {
	// A caller waiting on a timed-out attempt may wake while a newer
	// attempt is already in flight; it must follow that attempt rather
	// than mistake its fresh state for success.
	for round := 0; round < 20; round++ {
		cluster := &fakeCluster{startDelay: 250 * time.Millisecond}
		p := pool.New(1, cluster.factory, logging.NewNop(), pool.WithInitTimeout(10*time.Millisecond))

		firstDone := make(chan error, 1)
		go func() { firstDone <- p.Initialize(context.Background()) }()
		time.Sleep(2 * time.Millisecond)

		waiterDone := make(chan error, 1)
		go func() { waiterDone <- p.Initialize(context.Background()) }()

		if err := <-firstDone; !errors.Is(err, services.ErrTimeout) {
			t.Fatalf("round %d: first attempt err = %v", round, err)
		}

		// Start a second failing attempt as soon as the first one reports.
		secondDone := make(chan error, 1)
		go func() { secondDone <- p.Initialize(context.Background()) }()

		if err := <-waiterDone; err == nil {
			t.Fatalf("round %d: waiter reported ready while no attempt succeeded", round)
		}
		<-secondDone
		p.Terminate()
	}
}

func TestConcurrentInitializeStartsUnitsOnce(t *testing.T) {
	cluster := &fakeCluster{startDelay: 50 * time.Millisecond}
	p := pool.New(3, cluster.factory, logging.NewNop())
	defer p.Terminate()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Initialize(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Initialize returned error: %v", err)
		}
	}

	if created := cluster.createdCount(); created != 3 {
		t.Fatalf("expected 3 units created, got %d", created)
	}
}

func TestTerminateFailsHeldJobs(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(1, cluster.factory, logging.NewNop())

	ctx := context.Background()
	events := make(chan string, 8)
	errs := make(chan error, 2)
	held := makeJob("held#0", events)
	held.OnError = func(err error) {
		errs <- err
		events <- "error:held#0"
	}
	queued := makeJob("queued#0", events)
	queued.OnError = func(err error) {
		errs <- err
		events <- "error:queued#0"
	}
	if err := p.Submit(ctx, held); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if err := p.Submit(ctx, queued); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	awaitRequest(t, cluster.unit(0))

	p.Terminate()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		got[awaitEvent(t, events)] = true
	}
	if !got["error:held#0"] || !got["error:queued#0"] {
		t.Fatalf("expected both jobs failed on terminate, got %v", got)
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, services.ErrCancelled) {
			t.Fatalf("expected cancelled classification, got %v", err)
		}
	}
}

func TestTerminateResetsPool(t *testing.T) {
	cluster := &fakeCluster{}
	p := pool.New(2, cluster.factory, logging.NewNop())

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	p.Terminate()

	status := p.Status()
	if status.TotalUnits != 0 {
		t.Fatalf("expected cleared status, got %+v", status)
	}

	// Submit re-initializes a terminated pool.
	events := make(chan string, 1)
	if err := p.Submit(context.Background(), makeJob("a#0", events)); err != nil {
		t.Fatalf("Submit after terminate returned error: %v", err)
	}
	defer p.Terminate()
	if created := cluster.createdCount(); created != 4 {
		t.Fatalf("expected fresh units after terminate, created=%d", created)
	}
}
