/*

Slotbase is a disk-backed variable store for long-running sessions.
Named slots behave like in-memory variables but live in a session
folder, so they survive restarts and can be shared between runs.
Work done inside a scope is tracked: each scope records the slots it
read and wrote, and the resulting dependency graph is kept with the
slots.

Vocabulary:

- slot: a named variable; its logical name is what callers use
- physical name: prefix + slot name, the base of every file of a slot
- representation: how a slot is kept on disk, one of
	value: codec-encoded bytes in {name}
	source: program text in {name}.src, evaluated on load
	generator: program text in {name}.gen, called on every load
	reference: the name of another slot in {name}.ref
	steps: a versioned chain in {name}.steps/
- step: a callable run in its own scope whose writes become new
  versions in their chains
- chain: the ordered versions of one slot plus a pointer to the latest
- scope: a unit of work; reads and writes inside it are recorded
- dependency: the timestamped set of slots a scope read
- graph: slot name -> dependencies, saved as the $depsgraph.meta slot
- cache: values resident in memory; a scope exit evicts what it
  touched unless the name is locked, was resident before, or is code

*/

package slotbase
