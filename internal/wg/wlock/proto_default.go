//go:build !whitedb_global_locks

package wlock

// DefaultProtocol is the algorithm used when a database is created without
// an explicit protocol choice. Build with the whitedb_global_locks tag to
// default to the global-flag algorithm instead.
const DefaultProtocol = ProtocolQueued
