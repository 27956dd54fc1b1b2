// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"fmt"
)

// displayResult is the outcome of converting one argument to text. A failed
// conversion is never surfaced to the intercepted function; it is replaced
// by a placeholder.
type displayResult struct {
	text string
	err  error
}

func (r displayResult) orPlaceholder(v any) string {
	if r.err == nil {
		return r.text
	}
	return fmt.Sprintf("<unprintable %T: %v>", v, r.err)
}

func display(v any) (r displayResult) {
	defer func() {
		if p := recover(); p != nil {
			r = displayResult{err: fmt.Errorf("panic: %v", p)}
		}
	}()
	switch x := v.(type) {
	case nil:
		return displayResult{text: "<nil>"}
	case string:
		return displayResult{text: x}
	case error:
		return displayResult{text: x.Error()}
	case fmt.Stringer:
		return displayResult{text: x.String()}
	default:
		return displayResult{text: fmt.Sprint(x)}
	}
}

// Display returns the display form of v, or a placeholder when converting it
// fails.
func Display(v any) string {
	return display(v).orPlaceholder(v)
}
