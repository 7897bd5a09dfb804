package updater

import (
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// MergePatchMutation returns a Mutation applying an RFC 7386 JSON merge patch
// to the resource body. The patch may not change the resource's identity or
// its resourceVersion; the expected version is always the one just read.
// Untouched fields keep their decoded types, integers stay int64.
func MergePatchMutation(patch []byte) Mutation {
	return func(obj *unstructured.Unstructured) error {
		original, err := obj.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encoding resource: %w", err)
		}
		merged, err := jsonpatch.MergePatch(original, patch)
		if err != nil {
			return fmt.Errorf("applying merge patch: %w", err)
		}

		patched := &unstructured.Unstructured{}
		if err := patched.UnmarshalJSON(merged); err != nil {
			return fmt.Errorf("decoding patched resource: %w", err)
		}
		if patched.GetName() != obj.GetName() ||
			patched.GetNamespace() != obj.GetNamespace() ||
			patched.GetKind() != obj.GetKind() {
			return errIdentityChanged
		}
		obj.Object = patched.Object
		return nil
	}
}

// SetNestedField returns a Mutation setting a single field, e.g.
// SetNestedField("value", "data", "key"). Go integer and float32 scalars are
// widened to int64 and float64; any other value must already be
// JSON-compatible (string, int64, float64, bool, nil, map[string]interface{}
// or []interface{}).
func SetNestedField(value interface{}, fields ...string) Mutation {
	value = jsonScalar(value)
	return func(obj *unstructured.Unstructured) error {
		return unstructured.SetNestedField(obj.Object, value, fields...)
	}
}

func jsonScalar(value interface{}) interface{} {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return value
	}
}
