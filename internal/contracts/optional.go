package contracts

import (
	"encoding/json"
	"fmt"
)

const (
	optionalComputed    = "computed"
	optionalNotComputed = "not_computed"
)

// Optional is either a computed value or an explicit "not computed" marker
// with the reason. The zero value is NotComputed with an empty reason.
// ⭐ SSOT: 선택적 지표(baseline, overfitting)는 null 대신 이 타입으로만 표현
type Optional[T any] struct {
	value    T
	computed bool
	reason   string
}

// Computed wraps a value
func Computed[T any](v T) Optional[T] {
	return Optional[T]{value: v, computed: true}
}

// NotComputed records why the value is absent
func NotComputed[T any](reason string) Optional[T] {
	return Optional[T]{reason: reason}
}

// Get returns the value and whether it was computed
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.computed
}

// IsComputed reports whether a value is present
func (o Optional[T]) IsComputed() bool {
	return o.computed
}

// Reason is the not-computed explanation, empty when computed
func (o Optional[T]) Reason() string {
	return o.reason
}

type optionalJSON[T any] struct {
	Status string `json:"status"`
	Value  *T     `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// MarshalJSON always emits the status so consumers never read absence as zero
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.computed {
		v := o.value
		return json.Marshal(optionalJSON[T]{Status: optionalComputed, Value: &v})
	}
	return json.Marshal(optionalJSON[T]{Status: optionalNotComputed, Reason: o.reason})
}

// UnmarshalJSON reads the shape written by MarshalJSON
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	var raw optionalJSON[T]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Status {
	case optionalComputed:
		if raw.Value == nil {
			return fmt.Errorf("optional: computed without value")
		}
		*o = Computed(*raw.Value)
	case optionalNotComputed:
		*o = NotComputed[T](raw.Reason)
	default:
		return fmt.Errorf("optional: unknown status %q", raw.Status)
	}
	return nil
}
