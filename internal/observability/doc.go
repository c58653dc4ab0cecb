// Package observability builds the process logger and attaches request
// scoped fields to it.
package observability
