// Package cachecore holds the contracts shared by the cache orchestrator and
// its storage drivers: backend kinds, the Storage interface and the record
// envelope every backend persists.
package cachecore
