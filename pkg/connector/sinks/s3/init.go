package s3

import (
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("s3", New)
}
