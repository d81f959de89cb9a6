package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/lazyyq/vscode-sync-settings/internal/diff"
)

// Kind names a sync operation.
type Kind string

const (
	KindDownload Kind = "download"
	KindUpload   Kind = "upload"
	KindReview   Kind = "review"
	KindReset    Kind = "reset"
)

// Mutating reports whether the operation changes local settings or the
// repository working tree. Reviews are read-only and may run alongside
// a mutating operation; mutating operations serialize.
func (k Kind) Mutating() bool { return k != KindReview }

// State is an operation's position in its lifecycle.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrSuperseded is the result of a queued operation dropped because a
// newer request of the same kind replaced it.
var ErrSuperseded = errors.New("superseded by a newer request")

// Result is what an operation produced.
type Result struct {
	Patch   diff.Patch
	Message string
	Err     error
}

// Operation is one download/upload/review/reset request.
type Operation struct {
	ID      uuid.UUID
	Kind    Kind
	Profile string

	mu     sync.Mutex
	state  State
	result Result
	done   chan struct{}
}

func newOperation(kind Kind, profile string) *Operation {
	return &Operation{
		ID:      uuid.New(),
		Kind:    kind,
		Profile: profile,
		state:   Pending,
		done:    make(chan struct{}),
	}
}

// State returns the operation's current state.
func (op *Operation) State() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Wait blocks until the operation reaches a terminal state or ctx ends.
func (op *Operation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-op.done:
		op.mu.Lock()
		defer op.mu.Unlock()
		return op.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// start moves Pending to Running. Returns false if the operation was
// cancelled while queued.
func (op *Operation) start() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state != Pending {
		return false
	}
	op.state = Running
	return true
}

func (op *Operation) finish(res Result) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state != Running {
		return
	}
	op.result = res
	if res.Err != nil {
		op.state = Failed
	} else {
		op.state = Succeeded
	}
	close(op.done)
}

// cancel drops a still-pending operation.
func (op *Operation) cancel() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state != Pending {
		return
	}
	op.state = Cancelled
	op.result = Result{Err: ErrSuperseded}
	close(op.done)
}
