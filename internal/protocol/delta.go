package protocol

import (
	"sort"

	"github.com/iudanet/storysync/internal/models"
)

// Snapshot is a document collection keyed by document key
type Snapshot map[string]models.Document

// Clone returns a deep copy of s
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, doc := range s {
		out[k] = doc.Clone()
	}
	return out
}

// Equal reports deep structural equality
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, doc := range s {
		o, ok := other[k]
		if !ok || !doc.Equal(o) {
			return false
		}
	}
	return true
}

// ComputeDelta returns the operations turning oldSnap into newSnap: creates,
// then updates, then deletes, each group ordered by key. Keys whose documents
// are deeply equal produce no operation.
func ComputeDelta(oldSnap, newSnap Snapshot, deviceID string, clock Clock) []Operation {
	var creates, updates, deletes []string

	for key, doc := range newSnap {
		prev, ok := oldSnap[key]
		switch {
		case !ok:
			creates = append(creates, key)
		case !prev.Equal(doc):
			updates = append(updates, key)
		}
	}
	for key := range oldSnap {
		if _, ok := newSnap[key]; !ok {
			deletes = append(deletes, key)
		}
	}

	sort.Strings(creates)
	sort.Strings(updates)
	sort.Strings(deletes)

	ops := make([]Operation, 0, len(creates)+len(updates)+len(deletes))
	for _, key := range creates {
		ops = append(ops, NewOperation(OpCreate, key, newSnap[key], nil, deviceID, clock))
	}
	for _, key := range updates {
		ops = append(ops, NewOperation(OpUpdate, key, newSnap[key], nil, deviceID, clock))
	}
	for _, key := range deletes {
		ops = append(ops, NewOperation(OpDelete, key, nil, nil, deviceID, clock))
	}
	return ops
}

// ApplyDelta replays ops onto a copy of snap. Create and update set the key,
// delete removes it, metadata_update patches the _metadata field of an
// existing document and is ignored for absent keys. snap is not modified.
func ApplyDelta(snap Snapshot, ops []Operation) Snapshot {
	out := snap.Clone()

	for _, op := range ops {
		switch op.Type {
		case OpCreate, OpUpdate:
			doc := op.Data.Clone()
			if doc == nil {
				doc = models.Document{}
			}
			out[op.Key] = doc
		case OpDelete:
			delete(out, op.Key)
		case OpMetadataUpdate:
			doc, ok := out[op.Key]
			if !ok {
				continue
			}
			meta, _ := doc[models.FieldMetadata].(map[string]any)
			patched := make(map[string]any, len(meta)+len(op.Metadata))
			for k, v := range meta {
				patched[k] = v
			}
			for k, v := range op.Metadata {
				patched[k] = models.CloneValue(v)
			}
			doc[models.FieldMetadata] = patched
		}
	}
	return out
}
