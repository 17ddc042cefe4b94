package mysql

import (
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("mysql", Factory("mysql"))
	_ = registry.RegisterSink("sqlite", Factory("sqlite"))
}
