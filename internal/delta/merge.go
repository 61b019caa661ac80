package delta

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Merge reconciles a local and a remote change list into one decision per
// path. It performs no I/O and never fails. When a list holds the same path
// more than once, the last entry wins.
//
// A path changed only locally is always uploaded, including when the local
// change is a delete.
func Merge(local, remote []DeltaEntry) []MergedDelta {
	localMap := indexByPath(local)
	remoteMap := indexByPath(remote)

	allPaths := mapset.NewThreadUnsafeSetWithSize[string](len(localMap) + len(remoteMap))
	for path := range localMap {
		allPaths.Add(path)
	}
	for path := range remoteMap {
		allPaths.Add(path)
	}

	paths := allPaths.ToSlice()
	slices.Sort(paths)

	merged := make([]MergedDelta, 0, len(paths))
	for _, path := range paths {
		l, localExists := localMap[path]
		r, remoteExists := remoteMap[path]

		switch {
		case localExists && !remoteExists:
			merged = append(merged, MergedDelta{Path: path, Action: MergeUpload, Local: l})
		case !localExists && remoteExists:
			merged = append(merged, MergedDelta{Path: path, Action: MergeDownload, Remote: r})
		default:
			action, conflict := resolve(l, r)
			merged = append(merged, MergedDelta{Path: path, Action: action, Local: l, Remote: r, HasConflict: conflict})
		}
	}
	return merged
}

// resolve decides a path changed on both sides.
func resolve(l, r *DeltaEntry) (MergedAction, bool) {
	conflict := l.Action != ActionDelete && r.Action != ActionDelete && l.Hash != r.Hash

	switch {
	case conflict:
		return MergeConflict, true
	case l.Action == ActionDelete:
		return MergeDeleteRemote, false
	case r.Action == ActionDelete:
		return MergeDeleteLocal, false
	case l.Modified.After(r.Modified):
		return MergeUpload, false
	default:
		// equal timestamps resolve to the remote side
		return MergeDownload, false
	}
}

func indexByPath(entries []DeltaEntry) map[string]*DeltaEntry {
	index := make(map[string]*DeltaEntry, len(entries))
	for i := range entries {
		entry := entries[i]
		index[entry.Path] = &entry
	}
	return index
}
