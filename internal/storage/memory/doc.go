// Package memory implements the sync state, case and archive stores in
// process memory for development and tests.
package memory
