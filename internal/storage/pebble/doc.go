// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// batches, prefix scans and minimal metrics hooks. It backs the consumer
// checkpoint store.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set(ctx, []byte("cp/tail"), value)
//	_ = db.ScanPrefix([]byte("cp/"), func(k, v []byte) bool { return true })
package pebblestore
