package pool

import (
	"context"
	"fmt"

	"squish/internal/codec"
	"squish/internal/services"
)

// Request is the work order handed to an execution unit.
type Request struct {
	JobID        string
	Input        []byte
	InputFormat  codec.Format
	OutputFormat codec.Format
	Quality      int
	Lossless     bool
}

type messageKind int

const (
	msgProgress messageKind = iota
	msgCompleted
	msgFailed
	msgCrashed
)

// Message is an asynchronous report from an execution unit to the pool.
type Message struct {
	UnitID  int
	JobID   string
	Kind    messageKind
	Percent int
	Result  codec.EncodeResult
	Err     error
}

// ProgressMessage builds a progress report for a job.
func ProgressMessage(unitID int, jobID string, percent int) Message {
	return Message{UnitID: unitID, JobID: jobID, Kind: msgProgress, Percent: percent}
}

// CompletedMessage builds a terminal success report for a job.
func CompletedMessage(unitID int, jobID string, result codec.EncodeResult) Message {
	return Message{UnitID: unitID, JobID: jobID, Kind: msgCompleted, Result: result}
}

// FailedMessage builds a terminal failure report for a job.
func FailedMessage(unitID int, jobID string, err error) Message {
	return Message{UnitID: unitID, JobID: jobID, Kind: msgFailed, Err: err}
}

// CrashedMessage reports an execution unit fault while holding a job.
func CrashedMessage(unitID int, jobID string, err error) Message {
	return Message{UnitID: unitID, JobID: jobID, Kind: msgCrashed, Err: err}
}

// ExecutionUnit is an isolated worker that can run one encode request at a
// time, reporting progress and completion asynchronously on the pool's
// message channel.
type ExecutionUnit interface {
	// Start brings the unit to readiness. The pool calls Start for all
	// units in parallel and bounds the collective wait.
	Start(ctx context.Context) error
	// Submit hands the unit a request. The pool only submits to a unit it
	// considers free.
	Submit(request Request)
	// Stop releases the unit.
	Stop()
}

// UnitFactory builds one execution unit that reports on the given channel.
type UnitFactory func(id int, messages chan<- Message) ExecutionUnit

// encoderUnit runs an opaque Encoder on its own goroutine. A panic inside
// the encoder is contained to the in-flight request: the unit reports a
// crash and stays in service.
type encoderUnit struct {
	id       int
	encoder  codec.Encoder
	messages chan<- Message
	requests chan Request
	stop     chan struct{}
}

// NewEncoderUnits returns a factory producing units backed by the given
// encode capability.
func NewEncoderUnits(encoder codec.Encoder) UnitFactory {
	return func(id int, messages chan<- Message) ExecutionUnit {
		return &encoderUnit{
			id:       id,
			encoder:  encoder,
			messages: messages,
			requests: make(chan Request, 1),
			stop:     make(chan struct{}),
		}
	}
}

func (u *encoderUnit) Start(context.Context) error {
	go u.run()
	return nil
}

func (u *encoderUnit) Submit(request Request) {
	select {
	case u.requests <- request:
	case <-u.stop:
	}
}

func (u *encoderUnit) Stop() {
	close(u.stop)
}

func (u *encoderUnit) run() {
	for {
		select {
		case <-u.stop:
			return
		case request := <-u.requests:
			u.process(request)
		}
	}
}

func (u *encoderUnit) process(request Request) {
	defer func() {
		if r := recover(); r != nil {
			u.messages <- CrashedMessage(u.id, request.JobID,
				services.Wrap(services.ErrWorkerCrash, "pool", "encode",
					fmt.Sprintf("unit %d panicked: %v", u.id, r), nil))
		}
	}()

	result, err := u.encoder.Encode(
		request.Input,
		request.InputFormat,
		request.OutputFormat,
		request.Quality,
		request.Lossless,
	)
	if err != nil {
		u.messages <- FailedMessage(u.id, request.JobID, err)
		return
	}
	u.messages <- CompletedMessage(u.id, request.JobID, result)
}
