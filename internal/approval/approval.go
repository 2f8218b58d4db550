// Package approval drives request → approve → confirm workflows against the
// remote API: a request is created, the user approves it on another device
// (wallet app), and the status endpoint is polled until the outcome is known.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StatePending    State = "pending"
	StateApproved   State = "approved"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateCancelled || s == StateFailed
}

// Flow kinds
const (
	KindLogin   = "login"
	KindPayment = "payment"
)

var (
	ErrAlreadyStarted = errors.New("approval already started")
	ErrNotPending     = errors.New("approval is not pending")
	ErrCancelled      = errors.New("approval cancelled")
	ErrDenied         = errors.New("approval denied")
	ErrTimeout        = errors.New("approval timed out")
)

// RequestError means the initiating call failed or returned something unusable.
// It is never retried; the user has to start over.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("approval request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// TransientPollError is a single failed status check. The poll loop logs it
// and tries again on the next tick.
type TransientPollError struct {
	RequestID string
	Attempt   int
	Err       error
}

func (e *TransientPollError) Error() string {
	return fmt.Sprintf("status check %d for %s failed: %v", e.Attempt, e.RequestID, e.Err)
}

func (e *TransientPollError) Unwrap() error { return e.Err }

// Request is a pending approval as returned by the initiating call.
type Request struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"` // URL the wallet app opens, shown as a QR code
	CreatedAt time.Time `json:"created_at"`
}

func (r Request) validate() error {
	if r.ID == "" {
		return errors.New("missing request identifier")
	}
	if r.Reference == "" {
		return errors.New("missing request reference")
	}
	return nil
}

// Check is the answer of one status call.
type Check struct {
	Terminal bool
	Approved bool
	Result   json.RawMessage
}

// Result is the terminal outcome of an approval. Err is nil only for StateApproved.
type Result struct {
	RequestID string          `json:"request_id"`
	State     State           `json:"state"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Err       error           `json:"-"`
}

type InitiateFunc func(ctx context.Context) (Request, error)

type CheckFunc func(ctx context.Context, requestID string) (Check, error)

// Recorder receives poller lifecycle events, e.g. for metrics.
type Recorder interface {
	RequestFailed(kind string)
	PollStarted(kind string)
	Checked(kind string)
	TransientError(kind string)
	PollResolved(kind string, state State)
}

type nopRecorder struct{}

func (nopRecorder) RequestFailed(string)       {}
func (nopRecorder) PollStarted(string)         {}
func (nopRecorder) Checked(string)             {}
func (nopRecorder) TransientError(string)      {}
func (nopRecorder) PollResolved(string, State) {}
