package discovery

import (
	"context"
	"errors"
)

// MultiSink fans rows out to several sinks in order.
type MultiSink struct {
	sinks []RowSink
}

// NewMultiSink skips nil sinks.
func NewMultiSink(sinks ...RowSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// WriteRows stops at the first failing sink.
func (m *MultiSink) WriteRows(ctx context.Context, rows []OutputRow) error {
	for _, s := range m.sinks {
		if err := s.WriteRows(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
