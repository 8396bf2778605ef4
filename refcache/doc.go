// Package refcache resolves and holds the host classes, methods and fields the
// engine needs to call back into the host.
//
// The cache follows a strict lifecycle: Init at library load resolves every
// symbol or fails the load, accessors are valid until Release begins, and
// Release tears entries down class by class with each class's member IDs
// cleared before its global reference is deleted. Any read outside that
// window panics with a fatal error instead of returning a stale handle.
package refcache
