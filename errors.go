package livecmp

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for engine operations.
var (
	// ErrCorruptPayload indicates an inbound snapshot whose checksum is
	// missing or does not match. The request is rejected before any user
	// code runs - no partial recovery is attempted.
	ErrCorruptPayload = errors.New("livecmp: corrupt payload")

	// ErrUnknownComponent indicates a component name with no registered class.
	ErrUnknownComponent = errors.New("livecmp: component not found")

	// ErrMethodNotAllowed indicates a method call targeting a nonexistent,
	// non-public, or framework-inherited method.
	ErrMethodNotAllowed = errors.New("livecmp: method not callable")

	// ErrTooManyCalls indicates an update batch exceeding the configured
	// method-call ceiling. The batch is rejected wholesale.
	ErrTooManyCalls = errors.New("livecmp: too many method calls")

	// ErrLockedProperty indicates an update targeting a property marked
	// locked, directly or through a nested path.
	ErrLockedProperty = errors.New("livecmp: locked property")

	// ErrNoStore indicates component store access outside an active request
	// scope. This is a programmer error and always fatal.
	ErrNoStore = errors.New("livecmp: no store found")
)

// IsCorruptPayload checks if err is a checksum or seal failure.
func IsCorruptPayload(err error) bool {
	return errors.Is(err, ErrCorruptPayload)
}

// IsUnknownComponent checks if err is an unresolved component name.
func IsUnknownComponent(err error) bool {
	return errors.Is(err, ErrUnknownComponent)
}

// IsMethodNotAllowed checks if err is a rejected method call.
func IsMethodNotAllowed(err error) bool {
	return errors.Is(err, ErrMethodNotAllowed)
}

// IsLockedProperty checks if err is a locked-property violation.
func IsLockedProperty(err error) bool {
	return errors.Is(err, ErrLockedProperty)
}

// IsTooManyCalls checks if err is a rejected oversized call batch.
func IsTooManyCalls(err error) bool {
	return errors.Is(err, ErrTooManyCalls)
}

// MethodError reports a method call that was rejected before invocation,
// identifying the method and component by name.
type MethodError struct {
	Component string
	Method    string
	Reason    string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("livecmp: cannot call method %q on component %q: %s", e.Method, e.Component, e.Reason)
}

func (e *MethodError) Unwrap() error { return ErrMethodNotAllowed }

// ValidationError carries per-field validation messages. It is recovered at
// the call-dispatch boundary and folded into the component's error bag
// rather than failing the request.
type ValidationError struct {
	Bag map[string][]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Bag))
	for f := range e.Bag {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "livecmp: validation failed: " + strings.Join(fields, ", ")
}

// Messages returns all messages for a field.
func (e *ValidationError) Messages(field string) []string {
	return e.Bag[field]
}
