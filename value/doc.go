// Package value provides safe handles over guest objects: a shared,
// lockable, poisonable reference plus typed views, boxing and unboxing
// for the fixed-width primitives, and the bridge that classifies guest
// exceptions into a closed set of kinds.
//
// A Value and every typed view over it share one slot. Clone adds an
// owner, Drop releases one; the underlying object stays rooted against
// collection until the last owner releases it. A panic inside With
// poisons the slot, and every later access fails with a poisoned error
// rather than observing torn state.
//
// Handles are affine to the goroutine driving the engine. The mutex
// guards the handle protocol itself, not cross-goroutine engine use.
package value
