package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marmos91/saslgate/pkg/diag"
	"github.com/marmos91/saslgate/pkg/sasl"
)

const layersPath = "negotiation.property_layers"

// PropertyLayers converts configured layers into negotiation properties.
// Each layer must be a mapping (diag.NotAnObject otherwise); nested
// mappings become dotted keys, and leaves must be scalars or lists of
// scalars (diag.InvalidPropertyValue otherwise). Lists are joined with
// commas, the usual form of qop and cipher lists.
func PropertyLayers(layers []any) ([]sasl.Properties, error) {
	out := make([]sasl.Properties, 0, len(layers))
	for i, layer := range layers {
		path := fmt.Sprintf("%s[%d]", layersPath, i)
		m, ok := asMap(layer)
		if !ok {
			return nil, diag.New(diag.NotAnObject, path)
		}
		props := sasl.Properties{}
		if err := flatten(props, "", m); err != nil {
			return nil, err
		}
		out = append(out, props)
	}
	return out, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	default:
		return nil, false
	}
}

func flatten(dst sasl.Properties, prefix string, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		v := m[k]
		if nested, ok := asMap(v); ok {
			if err := flatten(dst, key, nested); err != nil {
				return err
			}
			continue
		}
		leaf, err := propertyValue(key, v)
		if err != nil {
			return err
		}
		dst[key] = leaf
	}
	return nil
}

func propertyValue(key string, v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int, int64, float64:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			switch e.(type) {
			case string, bool, int, int64, float64:
				out = append(out, fmt.Sprint(e))
			default:
				return nil, diag.New(diag.InvalidPropertyValue, key, e)
			}
		}
		return strings.Join(out, ","), nil
	default:
		return nil, diag.New(diag.InvalidPropertyValue, key, v)
	}
}
