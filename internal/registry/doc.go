// Package registry holds the fixed set of workers built at startup.
// Membership never changes after construction, so the registry is safe for
// unsynchronized concurrent reads.
package registry
