//go:build whitedb_global_locks

package wlock

// DefaultProtocol under the whitedb_global_locks build tag: databases
// created without an explicit protocol choice use the global-flag
// algorithm.
const DefaultProtocol = ProtocolGlobalFlag
