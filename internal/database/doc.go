// Package database provides the SQLite dispatch journal.
//
// Every dispatch run, successful or not, is written to the dispatches table
// with the resolved class, the payload kind and MIME, whether it was
// converted or fell back, and how long it took. AsyncJournal decouples the
// dispatch path from SQLite; Recent serves the journal API and Prune keeps
// the table bounded.
//
// The database uses WAL mode and includes automatic schema initialization.
package database
