package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

// Run describes one harvesting run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Contacts   int
	Failed     int
	Messages   int
}

// Sink receives contact results as they complete. Put is called once per
// contact between Begin and Finish.
type Sink interface {
	Begin(ctx context.Context, run Run) error
	Put(ctx context.Context, res types.ContactResult) error
	Finish(ctx context.Context, run Run) error
}

// MultiSink delivers to several sinks concurrently.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a sink fanning out to sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Begin implements Sink.
func (m *MultiSink) Begin(ctx context.Context, run Run) error {
	return m.each(ctx, func(ctx context.Context, s Sink) error { return s.Begin(ctx, run) })
}

// Put implements Sink.
func (m *MultiSink) Put(ctx context.Context, res types.ContactResult) error {
	return m.each(ctx, func(ctx context.Context, s Sink) error { return s.Put(ctx, res) })
}

// Finish implements Sink.
func (m *MultiSink) Finish(ctx context.Context, run Run) error {
	return m.each(ctx, func(ctx context.Context, s Sink) error { return s.Finish(ctx, run) })
}

// each runs fn on every sink. One sink failing does not stop the others;
// all failures are joined.
func (m *MultiSink) each(ctx context.Context, fn func(context.Context, Sink) error) error {
	errs := make([]error, len(m.sinks))
	var g errgroup.Group
	for i, s := range m.sinks {
		g.Go(func() error {
			if err := fn(ctx, s); err != nil {
				errs[i] = fmt.Errorf("%T: %w", s, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
