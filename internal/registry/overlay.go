package registry

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"hydropipe/pkg/apperror"
)

// overlaySpec mirrors the subset of EndpointSpec an operator may tune
// without a code change: page size and lookback window.
type overlaySpec struct {
	PageSize     int `koanf:"page_size"`
	LookbackDays int `koanf:"lookback_days"`
}

// overlayDoc is the strict shape of an overlay YAML file:
//
//	apis:
//	  piezo:
//	    chroniques:
//	      page_size: 500
//	      lookback_days: 30
type overlayDoc struct {
	APIs map[string]map[string]overlaySpec `koanf:"apis"`
}

// LoadOverlay reads path as a strict-decoded YAML overlay and applies its
// page_size/lookback_days overrides onto descriptors in place. Unknown
// keys fail the load rather than being silently ignored, since a typo'd
// endpoint name would otherwise tune nothing and nobody would notice.
func LoadOverlay(path string, descriptors map[string]*EndpointDescriptor) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return apperror.Wrap(err, apperror.CodeConfigError, fmt.Sprintf("reading overlay %s", path))
	}

	var doc overlayDoc
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{
		Tag:       "koanf",
		FlatPaths: false,
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &doc,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		},
	}); err != nil {
		return apperror.Wrap(err, apperror.CodeConfigError, fmt.Sprintf("decoding overlay %s", path))
	}

	for apiName, endpoints := range doc.APIs {
		descriptor, ok := descriptors[apiName]
		if !ok {
			return apperror.New(apperror.CodeConfigError, fmt.Sprintf("overlay references unknown api %q", apiName))
		}
		for endpointName, override := range endpoints {
			spec, ok := descriptor.Endpoints[endpointName]
			if !ok {
				return apperror.New(apperror.CodeConfigError, fmt.Sprintf("overlay references unknown endpoint %q on api %q", endpointName, apiName))
			}
			if override.PageSize > 0 {
				spec.PageSize = override.PageSize
			}
			if override.LookbackDays > 0 {
				spec.LookbackDays = override.LookbackDays
			}
			descriptor.Endpoints[endpointName] = spec
		}
	}

	return nil
}
