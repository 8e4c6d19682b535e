// Package assert holds construction-time checks, a failed assertion is a wiring mistake
// and not something a caller can recover from.
package assert

import (
	"fmt"
	"reflect"
)

// NotNil panics if value is nil, this includes typed nil pointers, maps, funcs and
// interfaces wrapped in `any`.
func NotNil(value any, name ...string) {
	if isNil(value) {
		panic(fmt.Sprintf("expected %s to be not nil", label(name)))
	}
}

// NotEmptyStr panics if str is empty.
func NotEmptyStr(str string, name ...string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", label(name)))
	}
}

// Positive panics if n <= 0.
func Positive(n int, name ...string) {
	if n <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %d", label(name), n))
	}
}

func label(name []string) string {
	if len(name) == 0 {
		return "value"
	}
	return name[0]
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}
