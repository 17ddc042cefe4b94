package testutil

import (
	"context"
	"sync"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
)

// FakeSource is an in-memory core.Source. Batches and errors are looked up
// by unit entity.
type FakeSource struct {
	SourceKind  core.Kind
	Units       []core.Unit
	Batches     map[string]*core.Batch
	Errors      map[string]error
	DiscoverErr error
	// FetchFunc, when set, replaces the Batches/Errors lookup.
	FetchFunc func(unit core.Unit, cursor core.Cursor) (*core.Batch, error)

	mu      sync.Mutex
	fetched []core.Unit
	cursors []core.Cursor
	closed  bool
}

// Kind implements core.Source.
func (s *FakeSource) Kind() core.Kind {
	if s.SourceKind == "" {
		return core.KindFile
	}
	return s.SourceKind
}

// Discover implements core.Source.
func (s *FakeSource) Discover(context.Context) ([]core.Unit, error) {
	if s.DiscoverErr != nil {
		return nil, s.DiscoverErr
	}
	return append([]core.Unit(nil), s.Units...), nil
}

// Fetch implements core.Source.
func (s *FakeSource) Fetch(_ context.Context, unit core.Unit, cursor core.Cursor) (*core.Batch, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, unit)
	s.cursors = append(s.cursors, cursor)
	s.mu.Unlock()

	if s.FetchFunc != nil {
		return s.FetchFunc(unit, cursor)
	}
	if err := s.Errors[unit.Entity]; err != nil {
		return nil, err
	}
	if b, ok := s.Batches[unit.Entity]; ok {
		return b, nil
	}
	return &core.Batch{}, nil
}

// Close implements core.Source.
func (s *FakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Fetched returns the units fetched so far, in call order.
func (s *FakeSource) Fetched() []core.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Unit(nil), s.fetched...)
}

// Cursors returns the cursors passed to Fetch, in call order.
func (s *FakeSource) Cursors() []core.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Cursor(nil), s.cursors...)
}

// Closed reports whether Close was called.
func (s *FakeSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// TrackedSource is a FakeSource whose entities are skipped once recorded.
type TrackedSource struct {
	*FakeSource
	OverwriteAll bool
}

// Overwrite implements core.Tracked.
func (s *TrackedSource) Overwrite() bool {
	return s.OverwriteAll
}

// ExpandingSource is a FakeSource that expands units with ExpandFunc.
type ExpandingSource struct {
	*FakeSource
	ExpandFunc func(unit core.Unit) ([]core.Unit, error)
}

// Expand implements core.Expander.
func (s *ExpandingSource) Expand(_ context.Context, unit core.Unit) ([]core.Unit, error) {
	return s.ExpandFunc(unit)
}

// FakeSink is an in-memory core.Sink that records every request.
type FakeSink struct {
	Err error
	// WriteFunc, when set, replaces the default behaviour of counting rows.
	WriteFunc func(req core.WriteRequest) (core.WriteResult, error)

	mu     sync.Mutex
	writes []core.WriteRequest
	closed bool
}

// Write implements core.Sink.
func (s *FakeSink) Write(_ context.Context, req core.WriteRequest) (core.WriteResult, error) {
	s.mu.Lock()
	s.writes = append(s.writes, req)
	s.mu.Unlock()

	if s.WriteFunc != nil {
		return s.WriteFunc(req)
	}
	if s.Err != nil {
		return core.WriteResult{}, s.Err
	}
	return core.WriteResult{Count: req.Batch.Len(), Entity: req.SourceEntity}, nil
}

// Close implements core.Sink.
func (s *FakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Writes returns the requests received so far.
func (s *FakeSink) Writes() []core.WriteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.WriteRequest(nil), s.writes...)
}

// Closed reports whether Close was called.
func (s *FakeSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
