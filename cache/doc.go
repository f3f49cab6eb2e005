// Package cache holds the vocabulary shared by the query cache and its users:
// tags, cache configuration, key serialization, and the payload storage and
// codec interfaces.
//
// # Tags
//
// A Tag names something a cached result depends on. Entity tags carry the
// entity id; the collection as a whole uses ListID:
//
//	cache.EntityTag("Posts", "7")  // Posts:7
//	cache.ListTag("Posts")         // Posts:LIST
//
// # Keys
//
// The default KeySerializer turns a query descriptor into a key of the form
// endpoint::argument. Argument-less queries (nil or struct{}) use the endpoint
// alone. Arguments are serialized by reflection:
//
//   - Basic types: direct string representation
//   - Pointers and interfaces: the value they point to
//   - Slices and arrays: elements, recursively, with their length
//   - Maps: key=value pairs sorted by key
//   - Structs: exported fields as Name:value pairs
//   - Functions and channels: their address, stable within one process only
//   - Anything else: JSON
//
// Serialized arguments longer than MaxArgKeyLength are replaced by an xxhash
// digest.
//
// # Storage
//
// NewPayloadStore returns a sturdyc-backed PayloadStore sized by Config.
// Payloads are msgpack snapshots produced by NewCodec, so a caller mutating a
// result it received never changes what is cached.
package cache
