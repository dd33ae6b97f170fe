// Package mongo registers MongoDB-backed conversation run event log storage.
//
// Use clients/mongo to build the low-level client and pass it to NewStore to
// obtain a runlog.Store that persists append-only conversation events.
package mongo
