// Package cache holds the two cache tiers used by the registry client: a
// bounded in-process Memory cache with separate positive and negative TTLs,
// and a disk Store with one directory for package info JSON and one for
// tarballs. Durable applies the per-bucket switches from configuration.
package cache
