// Package layout decodes the guest runtime's internal object representation:
// the hidden tag word preceding every heap object, the small-type tag table,
// and the variable-width field descriptors hanging off a datatype.
//
// A layout.Ptr is the only legal way to refer to a guest heap object from
// host code. No pointer arithmetic on guest objects happens outside this
// package.
//
// Nothing here may be cached across a potential safepoint: the collector can
// recolor or reclaim an object the moment the host polls, so every decode is
// a fresh read.
package layout
