// Package delivery defines the contract between the notification targeter
// and whatever pushes messages to devices.
package delivery

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ErrorClass groups per-message failures by what the caller should do.
type ErrorClass string

const (
	// ClassNone marks a successful send.
	ClassNone ErrorClass = ""
	// ClassTransient failures may succeed on a later attempt; keep the device.
	ClassTransient ErrorClass = "transient"
	// ClassTokenInvalid means the token will never work again; prune the device.
	ClassTokenInvalid ErrorClass = "token_invalid"
)

// Message is one notification addressed to one device token.
type Message struct {
	DeviceID string
	Token    string
	Title    string
	Body     string
	Link     string
	Data     map[string]string
}

// Result is the outcome for one Message, in the same position as the
// message in the batch.
type Result struct {
	DeviceID string
	Token    string
	OK       bool
	Class    ErrorClass
	Error    string
}

// Sender delivers batches of messages. Send may return an error for the
// batch as a whole; otherwise it returns one Result per message.
type Sender interface {
	MaxBatch() int
	Send(ctx context.Context, msgs []Message) ([]Result, error)
}

// LogSender is a dry-run Sender that logs each message and reports success.
type LogSender struct {
	Log   zerolog.Logger
	Batch int
}

func (s *LogSender) MaxBatch() int {
	if s.Batch <= 0 {
		return 100
	}
	return s.Batch
}

func (s *LogSender) Send(ctx context.Context, msgs []Message) ([]Result, error) {
	results := make([]Result, len(msgs))
	for i, m := range msgs {
		s.Log.Info().
			Str("device_id", m.DeviceID).
			Str("title", m.Title).
			Str("link", m.Link).
			Msg("notification (dry run)")
		results[i] = Result{DeviceID: m.DeviceID, Token: m.Token, OK: true}
	}
	return results, nil
}

// Recorder is an in-memory Sender that records every batch and fails
// messages whose token has a configured error class.
type Recorder struct {
	Batch    int
	Failures map[string]ErrorClass // token -> class
	BatchErr error                 // returned for every batch when set

	mu      sync.Mutex
	batches [][]Message
}

func (r *Recorder) MaxBatch() int {
	if r.Batch <= 0 {
		return 100
	}
	return r.Batch
}

func (r *Recorder) Send(ctx context.Context, msgs []Message) ([]Result, error) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]Message(nil), msgs...))
	r.mu.Unlock()

	if r.BatchErr != nil {
		return nil, r.BatchErr
	}
	results := make([]Result, len(msgs))
	for i, m := range msgs {
		res := Result{DeviceID: m.DeviceID, Token: m.Token, OK: true}
		if class, ok := r.Failures[m.Token]; ok && class != ClassNone {
			res.OK = false
			res.Class = class
			res.Error = string(class)
		}
		results[i] = res
	}
	return results, nil
}

// Batches returns a copy of every batch sent so far.
func (r *Recorder) Batches() [][]Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Message, len(r.batches))
	copy(out, r.batches)
	return out
}

// Sent returns every message sent so far, flattened.
func (r *Recorder) Sent() []Message {
	var out []Message
	for _, b := range r.Batches() {
		out = append(out, b...)
	}
	return out
}
