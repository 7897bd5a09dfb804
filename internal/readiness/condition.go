package readiness

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

// PhaseRunning is the status.phase reported by a running instance.
const PhaseRunning = "Running"

// Observation is one read of a resource.
type Observation struct {
	// Found is false when the store answered NotFound.
	Found bool
	// Object is the document read, nil when not found.
	Object *unstructured.Unstructured
}

// String summarizes the observation for logs and timeout errors.
func (o Observation) String() string {
	if !o.Found || o.Object == nil {
		return "absent"
	}
	phase, _, _ := unstructured.NestedString(o.Object.Object, "status", "phase")
	if phase == "" {
		return fmt.Sprintf("present (uid=%s, resourceVersion=%s)", o.Object.GetUID(), o.Object.GetResourceVersion())
	}
	return fmt.Sprintf("present (uid=%s, resourceVersion=%s, phase=%s)",
		o.Object.GetUID(), o.Object.GetResourceVersion(), phase)
}

// Condition reports whether an observation is the awaited state.
type Condition func(Observation) bool

// Exists holds once the resource is readable.
func Exists(o Observation) bool {
	return o.Found && o.Object != nil
}

// Absent holds once the store answers NotFound.
func Absent(o Observation) bool {
	return !o.Found
}

// HasField holds once the field at path is present and not null.
func HasField(path ...string) Condition {
	return func(o Observation) bool {
		if !Exists(o) {
			return false
		}
		value, found, err := unstructured.NestedFieldNoCopy(o.Object.Object, path...)
		return err == nil && found && value != nil
	}
}

// FieldEquals holds once the string field at path equals want.
func FieldEquals(want string, path ...string) Condition {
	return func(o Observation) bool {
		if !Exists(o) {
			return false
		}
		value, found, err := unstructured.NestedString(o.Object.Object, path...)
		return err == nil && found && value == want
	}
}

// UIDChangedFrom holds once the resource exists with a uid other than previous.
func UIDChangedFrom(previous types.UID) Condition {
	return func(o Observation) bool {
		return Exists(o) && o.Object.GetUID() != previous
	}
}

// All holds when every condition holds.
func All(conds ...Condition) Condition {
	return func(o Observation) bool {
		for _, c := range conds {
			if !c(o) {
				return false
			}
		}
		return true
	}
}

// Restarted holds once a new instance, identified by a uid other than
// previous, reports the Running phase.
func Restarted(previous types.UID) Condition {
	return All(UIDChangedFrom(previous), FieldEquals(PhaseRunning, "status", "phase"))
}
