package sync

import "gosyncmovies/backend"

// Decision is the outcome of comparing a remote document with the local row.
type Decision int

const (
	// DecisionInsert: no local row, take the remote copy.
	DecisionInsert Decision = iota
	// DecisionReplace: the remote copy is strictly newer.
	DecisionReplace
	// DecisionKeepLocal: the local row is newer or equally new.
	DecisionKeepLocal
)

func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionReplace:
		return "replace"
	default:
		return "keep_local"
	}
}

// Decide applies last-writer-wins on lastModified. Ties keep the local row so
// an edit that has not been pushed yet is never clobbered.
func Decide(local *backend.MovieRecord, remote backend.MovieRecord) Decision {
	if local == nil {
		return DecisionInsert
	}
	if remote.LastModified.After(local.LastModified) {
		return DecisionReplace
	}
	return DecisionKeepLocal
}

// Resolve returns the record that survives a merge of local and remote.
func Resolve(local, remote backend.MovieRecord) backend.MovieRecord {
	if Decide(&local, remote) == DecisionReplace {
		remote.SyncState = backend.SyncSynced
		return remote
	}
	return local
}
