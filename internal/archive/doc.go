// Package archive persists chat messages to PostgreSQL.
//
// The Writer is fed from the session event loop, batches rows and inserts
// them with pgx.Batch. Inserts are append-only; a message seen twice (same
// nick, timestamp and text) is counted as a conflict and skipped.
package archive
