package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode copies a conf map into a struct tagged with `mapstructure`. Input is
// weakly typed so YAML scalars like "10" or 10 both fill an int field.
func Decode(in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("failed to decode conf: %w", err)
	}
	return nil
}
