// Package delta detects what changed in a sync root since the last reconciled
// pass, merges that with the remote side's changes and records accepted
// outcomes in the sync state store.
//
// The package performs no transfers. Detection, merging and state updates are
// separate steps so an orchestrator can perform uploads and downloads between
// Merge and Apply.
package delta
