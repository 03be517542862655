// Package store declares the cycle-history repository used by the progress
// store sink and the operator API. Implementations live under
// internal/storage; this package must not import database drivers.
package store
