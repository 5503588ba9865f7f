// Package clock provides an injectable time source.
//
// Production code uses Real(); tests use Fake(), which only moves forward
// when Advance is called, so multi-minute pacing delays and poll intervals
// can be simulated without real waiting.
package clock
