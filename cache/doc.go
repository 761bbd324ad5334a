// Package cache persists generated tiles.
//
// A Store writes encoded tiles to <dir>/<hash>.dds atomically and remembers
// an xxhash digest of every tile it wrote in a sharded LRU, so identical bytes
// are never rewritten within a session. A Manifest records the size and
// modification time of each tile's source in a badger database so unchanged
// sources can be skipped across sessions.
//
//	store, err := cache.NewStore(dir)
//	written, err := store.Write(req.Hash, encoded)
package cache
