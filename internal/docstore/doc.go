// Package docstore is a small document database modelled on hosted
// backend-as-a-service stores: collections of schemaless documents, dotted
// field-path updates, optimistic transactions and snapshot listeners.
//
// Three backends implement [Store]:
//   - [MemStore] keeps everything in process.
//   - [FileStore] persists each collection to a JSONL table.
//   - [RedisStore] keeps documents in Redis and uses WATCH/MULTI for transactions.
//
// Transactions are optimistic. Every document read through [Tx.Get] is
// recorded with its version; at commit time the backend verifies that none of
// them changed and applies all buffered writes atomically. On conflict the
// transaction function is run again, up to [MaxAttempts] times.
package docstore
