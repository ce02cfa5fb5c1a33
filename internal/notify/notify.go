// Package notify delivers operator notifications. Delivery is best effort:
// failures are logged and never reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Message struct {
	Kind        string
	Title       string
	Description string
	Severity    Severity
	Fields      []Field
	Timestamp   time.Time
}

type Sink interface {
	Send(ctx context.Context, msg Message) error
}

type Dispatcher struct {
	mu        sync.RWMutex
	sink      Sink
	logger    *zap.Logger
	async     bool
	onFailure func(kind string)
}

func NewDispatcher(logger *zap.Logger, async bool) *Dispatcher {
	return &Dispatcher{logger: logger, async: async}
}

// SetSink swaps the destination. A nil sink drops messages.
func (d *Dispatcher) SetSink(sink Sink) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

func (d *Dispatcher) OnFailure(fn func(kind string)) {
	d.mu.Lock()
	d.onFailure = fn
	d.mu.Unlock()
}

func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if d == nil {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	d.mu.RLock()
	sink := d.sink
	onFailure := d.onFailure
	d.mu.RUnlock()
	if sink == nil {
		d.logger.Debug("notification dropped", zap.String("kind", msg.Kind))
		return
	}

	send := func(ctx context.Context) {
		if err := sink.Send(ctx, msg); err != nil {
			d.logger.Warn("notification failed", zap.String("kind", msg.Kind), zap.Error(err))
			if onFailure != nil {
				onFailure(msg.Kind)
			}
		}
	}
	if d.async {
		go send(context.WithoutCancel(ctx))
		return
	}
	send(ctx)
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
