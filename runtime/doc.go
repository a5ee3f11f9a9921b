// Package runtime is the high-level entry point for embedding the
// interpreter. A Runtime owns one engine instance and serializes all
// access to it, so handles obtained through it may be used from any
// goroutine as long as calls go back through the Runtime.
//
// Lower layers (engine, value) are single-goroutine affine; this is the
// layer that makes the binding safe to share.
package runtime
