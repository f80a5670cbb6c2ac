package testutil

import (
	"context"
	"errors"
	"sync"

	"proofdrop/internal/events"
)

// ErrEmitFailed is what a broken FaultyEmitter returns.
var ErrEmitFailed = errors.New("event sink unavailable")

// FaultyEmitter forwards to next until Break is called and again after Fix.
type FaultyEmitter struct {
	mu     sync.Mutex
	next   events.Emitter
	broken bool
	failed int
}

func NewFaultyEmitter(next events.Emitter) *FaultyEmitter {
	return &FaultyEmitter{next: next}
}

func (e *FaultyEmitter) Break() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broken = true
}

func (e *FaultyEmitter) Fix() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broken = false
}

// Failed counts the emits rejected while broken.
func (e *FaultyEmitter) Failed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

func (e *FaultyEmitter) Emit(ctx context.Context, event events.Event) error {
	e.mu.Lock()
	if e.broken {
		e.failed++
		e.mu.Unlock()
		return ErrEmitFailed
	}
	e.mu.Unlock()
	return e.next.Emit(ctx, event)
}
