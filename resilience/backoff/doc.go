// Package backoff provides exponential backoff helpers with jitter, used to
// pace recovery probes and retry loops.
package backoff
