package snowflake

import (
	"github.com/ajitpratap0/hdm/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSink("snowflake_internal_stage", NewInternalStage)
	_ = registry.RegisterSink("snowflake_copy", NewCopy)
}
