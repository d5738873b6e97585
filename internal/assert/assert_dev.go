//go:build !release

package assert

import "fmt"

// That panics with the formatted message when cond is false. Used to guard
// invariants that the core re-establishes after every structural transition;
// a failure here means a prior mutation left the world inconsistent.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
