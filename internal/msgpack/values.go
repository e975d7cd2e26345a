package msgpack

import (
	"fmt"

	"github.com/banshee-data/scansegment/internal/segment"
)

// asKeyedMap normalises a decoded msgpack map into map[int64]interface{}.
// Integer-keyed and string-keyed maps are both accepted; string keys resolve
// through the fixed lookup table. Unknown string keys and non-scalar keys are
// rejected; unknown integer keys are kept so forward-compatible fields pass
// through untouched.
func asKeyedMap(raw interface{}) (map[int64]interface{}, error) {
	switch m := raw.(type) {
	case map[string]interface{}:
		out := make(map[int64]interface{}, len(m))
		for name, value := range m {
			code, ok := stringKeys[name]
			if !ok {
				return nil, fmt.Errorf("unknown key %q", name)
			}
			out[code] = value
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[int64]interface{}, len(m))
		for key, value := range m {
			switch k := key.(type) {
			case string:
				code, ok := stringKeys[k]
				if !ok {
					return nil, fmt.Errorf("unknown key %q", k)
				}
				out[code] = value
			default:
				code, ok := toInt64(key)
				if !ok {
					return nil, fmt.Errorf("key %v is neither string nor integer", key)
				}
				out[code] = value
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value of type %T is not a map", raw)
	}
}

func requireUint(fields map[int64]interface{}, key int64) (uint64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", segment.ErrMissingField, keyName(key))
	}
	v, ok := toUint64(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not an unsigned integer", segment.ErrTypeMismatch, keyName(key))
	}
	return v, nil
}

func requireUint32(fields map[int64]interface{}, key int64) (uint32, error) {
	v, err := requireUint(fields, key)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func optionalUint32(fields map[int64]interface{}, key int64) (uint32, bool, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	v, ok := toUint64(raw)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s is not an unsigned integer", segment.ErrTypeMismatch, keyName(key))
	}
	return uint32(v), true, nil
}

func requireFloat(fields map[int64]interface{}, key int64) (float32, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", segment.ErrMissingField, keyName(key))
	}
	v, ok := toFloat64(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", segment.ErrTypeMismatch, keyName(key))
	}
	return float32(v), nil
}

// The msgpack codec hands back whichever Go integer width fits the wire
// value, so every numeric accessor goes through these coercions.

func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

func toUint64(raw interface{}) (uint64, bool) {
	switch v := raw.(type) {
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int8:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int16:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int32:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

func toFloat64(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		// Integers are valid float channel values on the wire.
		if i, ok := toInt64(raw); ok {
			return float64(i), true
		}
		return 0, false
	}
}
