package protocol

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/iudanet/storysync/internal/models"
)

// Strategy selects how a conflict is resolved
type Strategy string

const (
	LastWriteWins Strategy = "last_write_wins"
	AutoMerge     Strategy = "auto_merge"
	KeepBoth      Strategy = "keep_both"
	Manual        Strategy = "manual"
)

var (
	// ErrNoResolver is returned by the manual strategy without a resolver
	ErrNoResolver = errors.New("manual resolution requires a resolver")
	// ErrUnknownStrategy is returned for an unrecognized strategy
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)

// ParseStrategy parses a strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case LastWriteWins, AutoMerge, KeepBoth, Manual:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Сторона конфликта в метаданных _conflict
const (
	SideLocal  = "local"
	SideRemote = "remote"
)

// Resolver resolves a conflict for the manual strategy
type Resolver func(c Conflict) (Resolution, error)

// ResolveOptions tunes Resolve
type ResolveOptions struct {
	// Resolver is required by the manual strategy
	Resolver Resolver

	// Exists reports whether a key is already taken; keep-both appends a
	// counter to synthesized keys until they are free. Optional.
	Exists func(key string) bool
}

// Resolution is the outcome of resolving one conflict: documents to write
// and keys to delete.
type Resolution struct {
	// Winner is the operation that won outright, nil for merged results
	Winner    *Operation                 `json:"winner,omitempty"`
	Documents map[string]models.Document `json:"documents"`
	Deleted   []string                   `json:"deleted,omitempty"`
	Strategy  Strategy                   `json:"strategy"`
}

// Resolve applies strategy to c
func Resolve(c Conflict, strategy Strategy, opts ResolveOptions) (Resolution, error) {
	switch strategy {
	case LastWriteWins:
		return resolveLWW(c), nil
	case AutoMerge:
		return resolveMerge(c), nil
	case KeepBoth:
		return resolveKeepBoth(c, opts.Exists), nil
	case Manual:
		if opts.Resolver == nil {
			return Resolution{}, ErrNoResolver
		}
		res, err := opts.Resolver(c)
		if err != nil {
			return Resolution{}, fmt.Errorf("manual resolution of %q: %w", c.Key, err)
		}
		res.Strategy = Manual
		if res.Documents == nil {
			res.Documents = map[string]models.Document{}
		}
		return res, nil
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// ResolveAll resolves conflicts in order and stops at the first error
func ResolveAll(conflicts []Conflict, strategy Strategy, opts ResolveOptions) ([]Resolution, error) {
	out := make([]Resolution, 0, len(conflicts))
	for _, c := range conflicts {
		res, err := Resolve(c, strategy, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// winner returns the later operation; ties favor local
func winner(c Conflict) Operation {
	if c.Remote.IsNewerThan(c.Local) {
		return c.Remote
	}
	return c.Local
}

func resolveLWW(c Conflict) Resolution {
	w := winner(c).Clone()
	res := Resolution{
		Strategy:  LastWriteWins,
		Winner:    &w,
		Documents: map[string]models.Document{},
	}

	switch {
	case w.Type == OpDelete:
		res.Deleted = []string{c.Key}
	case w.Data != nil:
		res.Documents[c.Key] = w.Data.Clone()
	}
	return res
}

func resolveMerge(c Conflict) Resolution {
	// Удаление нельзя слить по полям
	if c.Local.Type == OpDelete || c.Remote.Type == OpDelete {
		return resolveLWW(c)
	}

	preferLocal := !c.Remote.IsNewerThan(c.Local)
	merged := mergeMaps(c.Local.Data, c.Remote.Data, preferLocal)

	return Resolution{
		Strategy:  AutoMerge,
		Documents: map[string]models.Document{c.Key: models.Document(merged)},
	}
}

// mergeMaps объединяет поля двух сторон. Вложенные объекты сливаются
// рекурсивно, разные скаляры разрешаются по LWW на уровне поля.
func mergeMaps(local, remote map[string]any, preferLocal bool) map[string]any {
	out := make(map[string]any, len(local)+len(remote))
	for k, lv := range local {
		out[k] = models.CloneValue(lv)
	}

	for k, rv := range remote {
		lv, ok := local[k]
		if !ok {
			out[k] = models.CloneValue(rv)
			continue
		}
		out[k] = mergeValue(lv, rv, preferLocal)
	}
	return out
}

func mergeValue(lv, rv any, preferLocal bool) any {
	lm, lok := asMap(lv)
	rm, rok := asMap(rv)
	if lok && rok {
		return mergeMaps(lm, rm, preferLocal)
	}
	if reflect.DeepEqual(lv, rv) || preferLocal {
		return models.CloneValue(lv)
	}
	return models.CloneValue(rv)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case models.Document:
		return map[string]any(m), true
	}
	return nil, false
}

func resolveKeepBoth(c Conflict, exists func(string) bool) Resolution {
	res := Resolution{
		Strategy:  KeepBoth,
		Documents: map[string]models.Document{},
	}

	taken := func(key string) bool {
		if key == c.Key {
			return true
		}
		if _, ok := res.Documents[key]; ok {
			return true
		}
		return exists != nil && exists(key)
	}

	for _, side := range []struct {
		op   Operation
		name string
	}{
		{op: c.Local, name: SideLocal},
		{op: c.Remote, name: SideRemote},
	} {
		// Удаленная сторона не несет данных
		if side.op.Type == OpDelete || side.op.Data == nil {
			continue
		}

		key := freeKey(fmt.Sprintf("%s.%s-%s", c.Key, side.name, shortDevice(side.op.DeviceID)), taken)
		doc := side.op.Data.Clone()
		doc[models.FieldConflict] = map[string]any{
			"original_key": c.Key,
			"side":         side.name,
			"device_id":    side.op.DeviceID,
			"timestamp":    float64(side.op.Timestamp),
		}
		res.Documents[key] = doc
	}
	return res
}

// freeKey appends -2, -3, ... to base until taken reports false
func freeKey(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// shortDevice returns the first 8 key-safe characters of a device id
func shortDevice(deviceID string) string {
	var b strings.Builder
	for _, r := range deviceID {
		if b.Len() == 8 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
