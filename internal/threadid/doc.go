// Package threadid reports the OS thread of the caller. It is used to
// instrument which thread runs deferred reclamation.
package threadid
