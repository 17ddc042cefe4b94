package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/logger"
)

// Registry maps manifest type tags to adapter factories
type Registry struct {
	sources map[string]SourceFactory
	sinks   map[string]SinkFactory
	mu      sync.RWMutex
}

// SourceFactory is a function that creates source adapter instances.
type SourceFactory func(params core.Params) (core.Source, error)

// SinkFactory is a function that creates sink adapter instances.
type SinkFactory func(params core.Params) (core.Sink, error)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		sinks:   make(map[string]SinkFactory),
	}
}

// RegisterSource registers a source adapter factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source type %s already registered", name))
	}

	r.sources[name] = factory
	logger.Get().Debug("source type registered", zap.String("type", name))
	return nil
}

// RegisterSink registers a sink adapter factory
func (r *Registry) RegisterSink(name string, factory SinkFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink type %s already registered", name))
	}

	r.sinks[name] = factory
	logger.Get().Debug("sink type registered", zap.String("type", name))
	return nil
}

// CreateSource builds the source registered under params.Type
func (r *Registry) CreateSource(params core.Params) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[params.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source type %s not found", params.Type)).
			WithDetail("name", params.Name)
	}

	source, err := factory(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create source %s", params.Name))
	}
	if source == nil {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("source %s is not a Source", params.Name))
	}

	return source, nil
}

// CreateSink builds the sink registered under params.Type
func (r *Registry) CreateSink(params core.Params) (core.Sink, error) {
	r.mu.RLock()
	factory, exists := r.sinks[params.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink type %s not found", params.Type)).
			WithDetail("name", params.Name)
	}

	sink, err := factory(params)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create sink %s", params.Name))
	}
	if sink == nil {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink %s is not a Sink", params.Name))
	}

	return sink, nil
}

// ListSources returns the registered source types in lexical order
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// ListSinks returns the registered sink types in lexical order
func (r *Registry) ListSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		sinks = append(sinks, name)
	}
	sort.Strings(sinks)
	return sinks
}

// HasSource checks if a source type is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// HasSink checks if a sink type is registered
func (r *Registry) HasSink(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sinks[name]
	return exists
}

// Global registry functions

// RegisterSource registers a source factory in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterSink registers a sink factory in the global registry
func RegisterSink(name string, factory SinkFactory) error {
	return globalRegistry.RegisterSink(name, factory)
}

// ListSources lists source types in the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListSinks lists sink types in the global registry
func ListSinks() []string {
	return globalRegistry.ListSinks()
}

// GetRegistry returns the global registry
func GetRegistry() *Registry {
	return globalRegistry
}
