package score

import "fmt"

// ValidationError reports a metamodel mutation that would leave the score inconsistent.
type ValidationError struct {
	// Object is the qualified name of the offending object, e.g. "shop.orders.total".
	Object string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.Object == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Object, e.Msg)
}

func invalid(object, format string, args ...any) error {
	return &ValidationError{Object: object, Msg: fmt.Sprintf(format, args...)}
}

func qualify(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "."
		}
		out += p
	}
	return out
}
