// Package errors defines the structured error taxonomy surfaced to host
// callers of the binding layer.
//
// Three families exist: guest-raised faults (always carried as
// KindUnhandledException with the classified exception attached),
// host-boundary contract violations (null pointer, invalid symbol, poisoned
// guard, resource in use), and wrapped lower-level failures (I/O, text
// encoding) passed through unchanged.
package errors
