// Package dice provides the randomness sources behind critical-hit rolls.
// Combat code never calls a global generator; a Source is injected so that
// every fight can be replayed from a seed.
package dice

// Source is the randomness provider for attack rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// unitSteps is the resolution of Unit: 2^53 evenly spaced values, the full
// mantissa precision of a float64.
const unitSteps = 1 << 53

// Unit draws a float in [0, 1) from src.
//
// Precondition: src must be non-nil.
// Postcondition: 0 <= result < 1.
func Unit(src Source) float64 {
	return float64(src.Intn(unitSteps)) / unitSteps
}

// UnitFunc adapts src into a function usable as a combat RNG.
func UnitFunc(src Source) func() float64 {
	return func() float64 { return Unit(src) }
}
