package fs

import (
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("fs", New)
}
