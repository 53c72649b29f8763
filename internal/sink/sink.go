// Package sink writes projected activity rows to their destinations.
package sink

import (
	"context"
	stderrors "errors"
)

// Sink receives the header once, then rows in emission order. Close flushes
// buffered rows and must be called exactly once.
type Sink interface {
	WriteHeader(ctx context.Context, columns []string) error
	WriteRow(ctx context.Context, row []string) error
	Close(ctx context.Context) error
}

// Multi fans every call out to all sinks in order. It stops at the first
// write error; Close always reaches every sink.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) WriteHeader(ctx context.Context, columns []string) error {
	for _, s := range m.sinks {
		if err := s.WriteHeader(ctx, columns); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) WriteRow(ctx context.Context, row []string) error {
	for _, s := range m.sinks {
		if err := s.WriteRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
