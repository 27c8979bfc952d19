// Package pipeline turns parsed source entities into synchronized vector
// and graph writes.
//
// IndexFile is the single write path: it hashes file content for the no-op
// reindex check, chunks every entity, redacts secrets from chunk text,
// embeds the chunks, tombstones the file's previous documents and graph
// rows, and upserts the new snapshot into both stores. The write order
// within a file is fixed (delete-old, vector, graph, hash commit) and the
// tracked hash is committed only after both stores acknowledge, so a crash
// or store failure leaves the file marked dirty and the next run redoes it
// from scratch. Tombstone-then-replace makes those retries idempotent.
//
// DeleteFile is the tombstone path for files removed from disk.
//
// The Tracker holds the per-workspace content-hash map backing the no-op
// check. It is rebuilt after restart from content hashes stored as graph
// node properties, so no separate durable state is needed.
package pipeline
