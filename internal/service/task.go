package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cycleuser/audiblez/internal/models"
)

type EventKind int

const (
	EventProgress EventKind = iota
	EventDone
	EventFailed
)

// Event is one message from a running task. Percent is 0..100 for progress
// events and models.ProgressError right before a failure.
type Event struct {
	Kind    EventKind
	Percent int
	ETA     time.Duration
	Message string
	Err     error
}

const eventBuffer = 32

// Task is a conversion running on its own goroutine.
//
// Events delivers progress events, then exactly one EventDone or EventFailed,
// then is closed. Progress events are dropped when the reader falls behind;
// the terminal event never is.
type Task struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	result Result
	err    error
}

// Start launches conv.Run for req.
func Start(ctx context.Context, conv *Converter, req Request) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		events: make(chan Event, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.events)
		defer cancel()

		res, err := conv.Run(ctx, req, func(p Progress) {
			t.progress(Event{Kind: EventProgress, Percent: p.Percent, ETA: p.ETA})
		})
		t.result, t.err = res, err
		close(t.done)

		if err != nil {
			t.progress(Event{Kind: EventProgress, Percent: models.ProgressError})
			t.events <- Event{Kind: EventFailed, Percent: models.ProgressError, Err: err, Message: err.Error()}
			return
		}
		t.events <- Event{Kind: EventDone, Percent: 100, Message: DoneMessage(res)}
	}()

	return t
}

// progress sends without blocking. The goroutine is the only sender, so
// keeping one slot free guarantees the terminal event fits.
func (t *Task) progress(e Event) {
	if len(t.events) < cap(t.events)-1 {
		t.events <- e
	}
}

func (t *Task) Events() <-chan Event { return t.events }

// Cancel stops the task before its next chapter.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the run returns.
func (t *Task) Wait() (Result, error) {
	<-t.done
	return t.result, t.err
}

// Canceled reports whether err ends a run that was cancelled.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// DoneMessage describes a finished run in one line.
func DoneMessage(res Result) string {
	switch {
	case res.Packaged:
		return fmt.Sprintf("Audiobook saved to %s", res.Output)
	case len(res.Files) > 0:
		return fmt.Sprintf("%d chapter files written, no audiobook was packaged", len(res.Files))
	default:
		return "Nothing was narrated"
	}
}
