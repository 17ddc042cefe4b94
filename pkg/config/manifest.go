package config

import (
	"fmt"
	"strings"
)

// Orchestrator types accepted in a manifest.
const (
	BatchOrchestrator    = "batch_orchestrator"
	DeclaredOrchestrator = "declared_orchestrator"
)

// Manifest is a pipeline definition document.
type Manifest struct {
	Version      string              `yaml:"version"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator"`
	StateManager StateManagerConfig  `yaml:"state_manager"`
	Declared     *DeclaredLinks      `yaml:"declared_data_links"`
	Templated    *TemplatedLinks     `yaml:"template_data_links"`

	// Path is the file the manifest was loaded from; not part of the document.
	Path string `yaml:"-"`
}

// OrchestratorConfig selects and tunes the scheduler.
type OrchestratorConfig struct {
	Name string             `yaml:"name"`
	Type string             `yaml:"type"`
	Conf OrchestratorTuning `yaml:"conf"`
}

// OrchestratorTuning holds the scheduler knobs.
type OrchestratorTuning struct {
	BackPressureFactor   *int    `yaml:"back_pressure_factor"`
	MemoryCeilingPercent float64 `yaml:"memory_ceiling_percent"`
}

// StateManagerConfig points the ledger at its backing store.
type StateManagerConfig struct {
	Connection string `yaml:"connection"`
	DAO        string `yaml:"dao"`
	DDLFile    string `yaml:"ddl_file"`
	FormatDate *bool  `yaml:"format_date"`
}

// Endpoint is one side of a link: a source or a sink.
type Endpoint struct {
	Name string                 `yaml:"name"`
	Type string                 `yaml:"type"`
	Conf map[string]interface{} `yaml:"conf"`
}

// DeclaredLinks are static source/sink pairs.
type DeclaredLinks struct {
	Stages []Stage `yaml:"stages"`
}

// Stage is one declared link.
type Stage struct {
	Source       Endpoint `yaml:"source"`
	Sink         Endpoint `yaml:"sink"`
	Pressureless *bool    `yaml:"pressureless"`
}

// TemplatedLinks are expanded once per scenario.
type TemplatedLinks struct {
	Templates []Template `yaml:"templates"`
}

// Template is a link definition plus the scenarios that instantiate it.
type Template struct {
	BatchDefinition BatchDefinition `yaml:"batch_definition"`
	Source          Endpoint        `yaml:"source"`
	Sink            Endpoint        `yaml:"sink"`
	Pressureless    *bool           `yaml:"pressureless"`
}

// BatchDefinition names the templated side and lists field overrides.
// Each scenario maps a conf field to a scalar, or to a map of sub-field values.
type BatchDefinition struct {
	SourceName string                   `yaml:"source_name"`
	Scenarios  []map[string]interface{} `yaml:"scenarios"`
}

// BackPressure returns the configured budget, defaulting to 1.
func (o *OrchestratorConfig) BackPressure() int {
	if o == nil || o.Conf.BackPressureFactor == nil {
		return 1
	}
	return *o.Conf.BackPressureFactor
}

// OrchestratorType returns the configured type, defaulting to batch_orchestrator.
func (m *Manifest) OrchestratorType() string {
	if m.Orchestrator == nil || m.Orchestrator.Type == "" {
		return BatchOrchestrator
	}
	return m.Orchestrator.Type
}

// ValidationErrors lists every problem found in a manifest.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return "invalid manifest: " + strings.Join(v, "; ")
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if err := Load(path, &m); err != nil {
		return nil, err
	}
	m.Path = path
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the structural rules of a manifest. Field overrides are
// checked later, when templates are expanded against their conf.
func (m *Manifest) Validate() error {
	var errs ValidationErrors

	if m.Orchestrator == nil {
		errs = append(errs, "orchestrator section is required")
	} else {
		switch m.OrchestratorType() {
		case BatchOrchestrator, DeclaredOrchestrator:
		default:
			errs = append(errs, fmt.Sprintf("unknown orchestrator type %q", m.Orchestrator.Type))
		}
		if m.Orchestrator.BackPressure() < 1 {
			errs = append(errs, "orchestrator.conf.back_pressure_factor must be positive")
		}
		if p := m.Orchestrator.Conf.MemoryCeilingPercent; p < 0 || p > 100 {
			errs = append(errs, "orchestrator.conf.memory_ceiling_percent must be between 0 and 100")
		}
	}

	if m.Declared == nil && m.Templated == nil {
		errs = append(errs, "one of declared_data_links or template_data_links is required")
	}

	if m.Declared != nil {
		for i, s := range m.Declared.Stages {
			errs = append(errs, s.Source.validate(fmt.Sprintf("declared_data_links.stages[%d].source", i))...)
			errs = append(errs, s.Sink.validate(fmt.Sprintf("declared_data_links.stages[%d].sink", i))...)
		}
	}

	if m.Templated != nil {
		for i, t := range m.Templated.Templates {
			at := fmt.Sprintf("template_data_links.templates[%d]", i)
			errs = append(errs, t.Source.validate(at+".source")...)
			errs = append(errs, t.Sink.validate(at+".sink")...)
			if t.BatchDefinition.SourceName == "" {
				errs = append(errs, at+".batch_definition.source_name is required")
			}
			if len(t.BatchDefinition.Scenarios) == 0 {
				errs = append(errs, at+".batch_definition.scenarios must not be empty")
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (e Endpoint) validate(at string) []string {
	var errs []string
	if e.Name == "" {
		errs = append(errs, at+".name is required")
	}
	if e.Type == "" {
		errs = append(errs, at+".type is required")
	}
	return errs
}
