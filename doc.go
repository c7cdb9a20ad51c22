/*
Package rockyardkv provides a pure-Go, embedded, ordered key/value store
built as a log-structured merge tree.

Writes are buffered in an in-memory memtable and appended to a write-ahead
log for durability. When a memtable fills, it is sealed as immutable and
flushed to an on-disk sorted-string table at level 0; a background worker
compacts overlapping files down through the levels to bound read and space
amplification.

# Usage

	opts := rockyardkv.DefaultOptions()
	opts.CreateIfMissing = true

	db, err := rockyardkv.Open("/path/to/db", opts)
	if err != nil {
		// handle err
	}
	defer db.Close()

	if err := db.Put(nil, []byte("key"), []byte("value")); err != nil {
		// handle err
	}
	val, err := db.Get(nil, []byte("key"))

# Concurrency

A DB instance is safe for concurrent use by multiple goroutines. Individual
Iterator instances are not safe for concurrent use; each goroutine should
use its own iterator. Snapshots pin a read view as of the moment they were
taken and are unaffected by subsequent writes until released.
*/
package rockyardkv
