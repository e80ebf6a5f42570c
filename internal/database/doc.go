// Package database provides SQLite-based storage of cspgen run history.
//
// This package implements the HistoryDB, which stores for every saved run:
//   - Run metadata and the final policy
//   - Every fetch attempt with its outcome
//   - The evidence (first page, first resource, count) behind each token
//
// The history lets a site owner see when a third-party origin first showed
// up in the generated policy. It is only written when a run is started
// with --save.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file and the driver is CGO-free, which keeps
// cross-compilation easy.
package database
