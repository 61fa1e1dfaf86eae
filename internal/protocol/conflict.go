package protocol

import (
	"sort"
	"time"
)

// DefaultConflictWindow is the largest timestamp distance at which the latest
// local and remote operations on a key are treated as concurrent
const DefaultConflictWindow = 5 * time.Second

// ConflictType classifies a conflict by the pair of operation kinds
type ConflictType string

const (
	ConflictConcurrentUpdate ConflictType = "concurrent_update"
	ConflictDeleteUpdate     ConflictType = "delete_update" // локально удален, удаленно изменен
	ConflictUpdateDelete     ConflictType = "update_delete" // локально изменен, удаленно удален
	ConflictUnknown          ConflictType = "unknown"
)

// Conflict is a pair of concurrent operations on one key
type Conflict struct {
	Local  Operation    `json:"local"`
	Remote Operation    `json:"remote"`
	Key    string       `json:"story_id"`
	Type   ConflictType `json:"type"`
}

// ClassifyConflict names the conflict between a local and a remote operation kind
func ClassifyConflict(local, remote OperationType) ConflictType {
	switch {
	case local == OpUpdate && remote == OpUpdate:
		return ConflictConcurrentUpdate
	case local == OpDelete && remote == OpUpdate:
		return ConflictDeleteUpdate
	case local == OpUpdate && remote == OpDelete:
		return ConflictUpdateDelete
	default:
		return ConflictUnknown
	}
}

// DetectConflicts pairs the latest local and remote operation of every key
// present on both sides. A pair conflicts when its timestamps are at most
// window apart, boundary included; farther apart the later write simply
// wins. A negative window selects DefaultConflictWindow. The result is sorted
// by key.
func DetectConflicts(local, remote []Operation, window time.Duration) []Conflict {
	if window < 0 {
		window = DefaultConflictWindow
	}
	limit := window.Milliseconds()

	latestLocal := latestByKey(local)
	latestRemote := latestByKey(remote)

	var conflicts []Conflict
	for key, l := range latestLocal {
		r, ok := latestRemote[key]
		if !ok {
			continue
		}

		delta := l.Timestamp - r.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta > limit {
			continue
		}

		conflicts = append(conflicts, Conflict{
			Key:    key,
			Local:  l.Clone(),
			Remote: r.Clone(),
			Type:   ClassifyConflict(l.Type, r.Type),
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Key < conflicts[j].Key
	})
	return conflicts
}

// latestByKey keeps the newest operation per key; on equal timestamps the
// later one in the stream wins
func latestByKey(ops []Operation) map[string]Operation {
	latest := make(map[string]Operation, len(ops))
	for _, op := range ops {
		if cur, ok := latest[op.Key]; ok && cur.IsNewerThan(op) {
			continue
		}
		latest[op.Key] = op
	}
	return latest
}
