// The [techu] package is a proxy in front of a Sphinx or Manticore search
// engine. It makes document mutations durable while the engine or its queue
// is briefly unavailable, and serves searches and excerpts from a cache that
// never returns results older than a completed write.
//
// # Writes
//
// [Proxy.Insert], [Proxy.Update] and [Proxy.Delete] compile the request into
// a parameterized SphinxQL statement with [github.com/techu/techu/pkg/sphinxql]
// and try to make it durable on one of two paths:
//
//   - direct: the statement is executed on the engine, then the version
//     counter of the index is bumped;
//   - queued: the statement is appended to the index queue in the cache
//     store, for an external applier to run later.
//
// A failure on one path switches to the other, up to [Config.MaxRetries]
// times. Setting the queue flag of a request starts on the queued path.
//
// # Reads
//
// [Proxy.Search] and [Proxy.Excerpts] look results up under a key that
// embeds the current version of the index, so a bump makes every older
// entry unreachable without evicting it. On a miss, one caller across all
// replicas takes a short-lived lock and recomputes; the others poll the
// cache until the entry appears or [Config.LockWaitTimeout] elapses.
//
// # Stores and engines
//
// The cache and queue stores are defined in [github.com/techu/techu/pkg/store],
// with a Redis and an in-memory implementation. The engine client in
// [github.com/techu/techu/pkg/engine] speaks the MySQL wire protocol.
//
// # Examples and Experimental Packages
//
// The [github.com/techu/techu/contrib] directory contains the HTTP adapter
// and test helpers that are not covered by the backward compatibility
// guarantee of the core packages.
package techu
