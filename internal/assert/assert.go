// Package assert holds invariant checks that panic; they guard values the
// program itself produced, never user input.
package assert

import "fmt"

// Length panics unless value has exactly expected bytes
func Length(value string, expected int) {
	if len(value) != expected {
		panic(fmt.Sprintf("assert.Length: expected %d bytes, got %d", expected, len(value)))
	}
}
