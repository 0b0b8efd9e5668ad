// Package retry provides an exponential-backoff retry policy shared by the
// communication framework's delivery loop and the registry snapshot store.
package retry
