// Package cache holds the process-wide response cache of the proxy. Entries
// are keyed by request fingerprint, live in memory for the lifetime of the
// process and are never evicted. Fetch wraps lookup, upstream load and store
// so concurrent misses on one fingerprint can converge on a single upstream
// call.
package cache
