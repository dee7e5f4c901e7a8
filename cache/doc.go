// Package cache provides the resilient two tier cache used by the product
// read path, together with typed access and canonical key serialization.
//
// # Overview
//
// This package exports:
//
//   - Cache: the byte level get/set/del/reset contract
//   - ResilientCache: a Cache backed by a remote store behind a circuit
//     breaker plus an always available in-process fallback store
//   - Typed: a Cache view bound to one payload type, encoded with msgpack
//   - KeySerializer and CanonicalJSON: stable key construction
//
// # Basic Usage
//
// The default wiring uses redis as the remote store and sturdyc as the
// fallback store:
//
//	build, err := cache.NewFromConfig(cache.DefaultConfig(), logger, collector)
//	if err != nil {
//		return err
//	}
//	defer build.Close()
//
//	products := cache.NewTyped[*Product](build.Cache, logger)
//	p, err := products.GetOrFetch(ctx, "product:42", time.Hour, loadProduct)
//
// # Failure Model
//
// Writes always land in the fallback store first and then go to the remote
// store through the breaker. Remote failures are logged and swallowed, so a
// caller only ever sees context errors. While the circuit is open, or a
// remote read fails, reads are served from the fallback store without
// touching the remote. A healthy remote is authoritative: its misses are
// misses.
//
// Fallback entries live for the shorter of the requested TTL and the
// fallback store TTL, so a remote outage shortens the effective retention
// window but never serves an entry past its expiry.
//
// # Key Serialization Strategy
//
// Every key derived from a filter object goes through CanonicalJSON, which
// sorts object keys at every depth. Two filter objects that differ only in
// key order therefore produce identical keys:
//
//	cache.CanonicalJSON(map[string]any{"b": 2, "a": 1}) // {"a":1,"b":2}
//
// KeySerializer joins segments with KeySeparator, rendering scalars as
// plain text and everything else canonically.
package cache
