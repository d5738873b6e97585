//go:build release

package assert

// That is a no-op in release builds. Invariant violations become undefined
// behaviour instead of a panic, per the core's error handling design.
func That(cond bool, format string, args ...any) {}
