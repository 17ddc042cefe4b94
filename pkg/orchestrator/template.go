package orchestrator

import (
	"sort"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// ExpandTemplate instantiates t once per scenario. Each scenario overrides
// conf fields of the endpoint (source, sink or both) whose name equals
// batch_definition.source_name: a scalar replaces conf[field], a map sets
// conf[field][sub] for each of its keys. Overriding a field the endpoint's
// conf does not have is a configuration error.
func ExpandTemplate(t config.Template) ([]config.Stage, error) {
	target := t.BatchDefinition.SourceName
	if target != t.Source.Name && target != t.Sink.Name {
		return nil, errors.Newf(errors.ErrorTypeConfig,
			"batch_definition.source_name %q matches neither source %q nor sink %q",
			target, t.Source.Name, t.Sink.Name)
	}

	pressureless := t.Pressureless
	if pressureless == nil {
		pressureless = boolPtr(false)
	}

	stages := make([]config.Stage, 0, len(t.BatchDefinition.Scenarios))
	for i, scenario := range t.BatchDefinition.Scenarios {
		stage := config.Stage{
			Source:       copyEndpoint(t.Source),
			Sink:         copyEndpoint(t.Sink),
			Pressureless: pressureless,
		}
		for _, ep := range []*config.Endpoint{&stage.Source, &stage.Sink} {
			if ep.Name != target {
				continue
			}
			if err := applyScenario(ep, scenario); err != nil {
				return nil, err.WithDetail("scenario", i)
			}
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func applyScenario(ep *config.Endpoint, scenario map[string]interface{}) *errors.Error {
	for _, field := range sortedKeys(scenario) {
		current, ok := ep.Conf[field]
		if !ok {
			return errors.Newf(errors.ErrorTypeConfig,
				"template field %q not found in conf of %s", field, ep.Name).
				WithDetail("field", field)
		}

		subs, nested := scenario[field].(map[string]interface{})
		if !nested {
			ep.Conf[field] = deepCopy(scenario[field])
			continue
		}

		dst, ok := current.(map[string]interface{})
		if !ok {
			return errors.Newf(errors.ErrorTypeConfig,
				"template field %q of %s is not a map, cannot override sub-fields", field, ep.Name).
				WithDetail("field", field)
		}
		for _, sub := range sortedKeys(subs) {
			dst[sub] = deepCopy(subs[sub])
		}
	}
	return nil
}

func copyEndpoint(ep config.Endpoint) config.Endpoint {
	out := config.Endpoint{Name: ep.Name, Type: ep.Type, Conf: map[string]interface{}{}}
	for k, v := range ep.Conf {
		out.Conf[k] = deepCopy(v)
	}
	return out
}

// deepCopy copies the maps and slices a YAML document decodes into.
func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	default:
		return v
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolPtr(b bool) *bool { return &b }
