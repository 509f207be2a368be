package config

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// DecoderConfig returns the mapstructure settings used to decode koanf
// maps into result. YAML lets network_id be written as a bare integer
// (network_id: 5777) so numeric values are accepted for NetworkID.
func DecoderConfig(result any) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			networkIDHook,
		),
		Result:           result,
		WeaklyTypedInput: true,
		TagName:          "koanf",
	}
}

var networkIDType = reflect.TypeOf(NetworkID(""))

func networkIDHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != networkIDType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return NetworkID(strings.TrimSpace(v)), nil
	case int:
		return NetworkID(strconv.Itoa(v)), nil
	case int64:
		return NetworkID(strconv.FormatInt(v, 10)), nil
	case uint64:
		return NetworkID(strconv.FormatUint(v, 10)), nil
	case float64:
		return NetworkID(strconv.FormatFloat(v, 'f', -1, 64)), nil
	}
	return data, nil
}
