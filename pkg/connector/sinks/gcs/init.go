package gcs

import (
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("google", New)
	_ = registry.RegisterSink("gcs", New)
}
