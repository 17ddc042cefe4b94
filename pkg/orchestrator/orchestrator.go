// Package orchestrator builds the data links a manifest describes and runs
// them under a concurrency budget.
//
// Pressureless links run first, one after the other, in declaration order.
// The remaining links are admitted in declaration order with at most
// back_pressure_factor of them running at once. A link's failure never
// cancels another link; fatal errors are collected and returned after every
// link has finished.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
	"github.com/ajitpratap0/hdm/pkg/datalink"
	"github.com/ajitpratap0/hdm/pkg/errors"
	"github.com/ajitpratap0/hdm/pkg/ledger"
	"github.com/ajitpratap0/hdm/pkg/logger"
	"github.com/ajitpratap0/hdm/pkg/runner"
)

// MemoryProbe returns the host's used memory in percent.
type MemoryProbe func(ctx context.Context) (float64, error)

// SystemMemory reads host memory usage with gopsutil.
func SystemMemory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Options configure an Orchestrator.
type Options struct {
	Settings config.Settings
	Profiles config.Profiles
	// Store is the ledger store shared by every link of the run.
	Store ledger.Store
	// Registry defaults to the global adapter registry.
	Registry *registry.Registry
	Logger   *zap.Logger
	// MemoryProbe defaults to SystemMemory.
	MemoryProbe MemoryProbe
	// PollInterval is how often a held-back link rechecks memory. Defaults
	// to one second.
	PollInterval time.Duration
}

// Orchestrator owns one run: a run id and the links built for it. Each link
// gets its own ledger job id, so links never settle each other's rows.
type Orchestrator struct {
	opts    Options
	logger  *zap.Logger
	runID   string
	budget  int
	ceiling float64
	links   []*datalink.DataLink
}

// New returns an orchestrator with a fresh run id.
func New(opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = registry.GetRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.MemoryProbe == nil {
		opts.MemoryProbe = SystemMemory
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	o := &Orchestrator{
		opts:   opts,
		runID:  ledger.NewID(),
		budget: 1,
	}
	o.logger = opts.Logger.With(
		zap.String("component", "orchestrator"),
		zap.String("run_id", o.runID))
	return o
}

// RunID returns the id stamped on every ledger row of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// Links returns the links built so far, in declaration order.
func (o *Orchestrator) Links() []*datalink.DataLink { return o.links }

// Build expands m into data links: every template scenario, then every
// declared stage. Any configuration error, including an unknown adapter
// type, is returned before a link runs; adapters already built are closed.
func (o *Orchestrator) Build(ctx context.Context, m *config.Manifest) ([]*datalink.DataLink, error) {
	if o.opts.Store == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "orchestrator needs a ledger store")
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid manifest")
	}

	o.budget = m.Orchestrator.BackPressure()
	if m.Orchestrator != nil {
		o.ceiling = m.Orchestrator.Conf.MemoryCeilingPercent
	}

	manifestName := o.opts.Settings.ManifestName()
	if m.Path != "" {
		manifestName = filepath.Base(m.Path)
	}

	var stages []config.Stage
	if m.Templated != nil {
		if m.OrchestratorType() == config.DeclaredOrchestrator {
			return nil, errors.New(errors.ErrorTypeConfig,
				"declared_orchestrator does not accept template_data_links")
		}
		for i, t := range m.Templated.Templates {
			expanded, err := ExpandTemplate(t)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig,
					fmt.Sprintf("expand template_data_links.templates[%d]", i))
			}
			stages = append(stages, expanded...)
		}
	}
	templated := len(stages)
	if m.Declared != nil {
		for _, s := range m.Declared.Stages {
			if s.Pressureless == nil {
				s.Pressureless = boolPtr(true)
			}
			stages = append(stages, s)
		}
	}

	links := make([]*datalink.DataLink, 0, len(stages))
	for i, s := range stages {
		name := fmt.Sprintf("%s->%s", s.Source.Name, s.Sink.Name)
		if i < templated {
			name = fmt.Sprintf("%s#%d", name, i)
		}
		link, err := o.buildLink(name, manifestName, s)
		if err != nil {
			for _, l := range links {
				_ = l.Close()
			}
			return nil, err
		}
		links = append(links, link)
	}

	o.links = append(o.links, links...)
	o.logger.Info("built data links",
		zap.String("manifest", manifestName),
		zap.Int("links", len(links)),
		zap.Int("back_pressure_factor", o.budget))
	return links, nil
}

func (o *Orchestrator) buildLink(name, manifestName string, s config.Stage) (*datalink.DataLink, error) {
	jobID := ledger.NewID()
	log := o.logger.With(zap.String("link", name))

	l := ledger.New(o.opts.Store, ledger.Identity{
		JobID:        jobID,
		RunID:        o.runID,
		ManifestName: manifestName,
		Source:       ledger.Endpoint{Name: s.Source.Name, Type: s.Source.Type},
		Sink:         ledger.Endpoint{Name: s.Sink.Name, Type: s.Sink.Type},
	}, log)

	source, err := o.opts.Registry.CreateSource(core.Params{
		Name:     s.Source.Name,
		Type:     s.Source.Type,
		PeerName: s.Sink.Name,
		Conf:     s.Source.Conf,
		Settings: o.opts.Settings,
		Profiles: o.opts.Profiles,
		Logger:   log.With(zap.String("source", s.Source.Name)),
	})
	if err != nil {
		return nil, err
	}

	sink, err := o.opts.Registry.CreateSink(core.Params{
		Name:     s.Sink.Name,
		Type:     s.Sink.Type,
		PeerName: s.Source.Name,
		Conf:     s.Sink.Conf,
		Settings: o.opts.Settings,
		Profiles: o.opts.Profiles,
		Logger:   log.With(zap.String("sink", s.Sink.Name)),
	})
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	return datalink.New(name,
		runner.NewSourceRunner(source, l, runner.WithLogger(log), runner.WithAdapterType(s.Source.Type)),
		runner.NewSinkRunner(sink, l, runner.WithLogger(log), runner.WithAdapterType(s.Sink.Type)),
		datalink.WithPressureless(*s.Pressureless),
		datalink.WithLogger(log),
	), nil
}

// Close releases the adapters of every link.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, l := range o.links {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}
