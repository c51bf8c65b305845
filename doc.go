// Package rescache is a resilient, typed accessor for a remote key-value
// store (Redis or compatible). One Manager owns one logical connection,
// watches the store's lifecycle events, and reconnects on demand before an
// operation when the connection is missing, reports itself disconnected, or
// has seen a failure event. At most one reconnect runs at a time; callers that
// find one in flight proceed with whatever connection exists.
//
// Components:
//   - Manager: connection lifecycle (state machine Connected/Failed/Reconnecting).
//   - Accessor[V]: typed Get/TryGet/GetAsync/Set/GetOrCreate/Delete for one value type.
//   - Serializer[V]: Codec[V] payload wrapped in a versioned frame carrying the codec ID.
//   - store: the client boundary; store/redis (go-redis) and store/memory (Ristretto).
//
// Connectivity problems never surface as errors: while the store is
// unreachable reads return the zero value and writes return false. Argument
// errors (blank keys, unserializable types) are returned immediately.
//
// Usage:
//
//	m, err := rescache.New(ctx, rescache.Options{ConnectionString: "localhost:6379,abortConnect=false"})
//	users, err := rescache.NewAccessor[User](m, rescache.AccessorOptions[User]{Namespace: "user"})
//	u, err := users.GetOrCreate(ctx, "42", loadUser, store.FlagPreferReplica, 10*time.Minute)
package rescache
