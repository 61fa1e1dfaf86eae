package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/models"
	"github.com/iudanet/storysync/internal/validation"
)

func updateConflict(localTS, remoteTS int64, local, remote models.Document) Conflict {
	return Conflict{
		Key:    "story-2",
		Local:  op(OpUpdate, "story-2", "device-local-1234", localTS, local),
		Remote: op(OpUpdate, "story-2", "device-remote-5678", remoteTS, remote),
		Type:   ConflictConcurrentUpdate,
	}
}

func TestResolve_LastWriteWins(t *testing.T) {
	tests := []struct {
		name      string
		wantTitle string
		localTS   int64
		remoteTS  int64
	}{
		{name: "remote later", localTS: 100, remoteTS: 200, wantTitle: "remote"},
		{name: "local later", localTS: 300, remoteTS: 200, wantTitle: "local"},
		{name: "tie favors local", localTS: 200, remoteTS: 200, wantTitle: "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := updateConflict(tt.localTS, tt.remoteTS, models.Document{"title": "local"}, models.Document{"title": "remote"})

			res, err := Resolve(c, LastWriteWins, ResolveOptions{})
			require.NoError(t, err)
			assert.Equal(t, LastWriteWins, res.Strategy)
			require.NotNil(t, res.Winner)
			assert.Equal(t, tt.wantTitle, res.Documents["story-2"].Title())
			assert.Empty(t, res.Deleted)
		})
	}
}

func TestResolve_LastWriteWinsDelete(t *testing.T) {
	c := Conflict{
		Key:    "k",
		Local:  op(OpUpdate, "k", "a", 100, models.Document{"title": "x"}),
		Remote: op(OpDelete, "k", "b", 200, nil),
		Type:   ConflictUpdateDelete,
	}

	res, err := Resolve(c, LastWriteWins, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, res.Deleted)
	assert.Empty(t, res.Documents)
	assert.Equal(t, OpDelete, res.Winner.Type)
}

func TestResolve_AutoMerge(t *testing.T) {
	local := models.Document{
		"title":  "Local title",
		"author": "ann",
		"passages": map[string]any{
			"start": "Once",
			"end":   "Fin",
		},
		"same": "value",
	}
	remote := models.Document{
		"title":  "Remote title",
		"genre":  "horror",
		"passages": map[string]any{
			"start":  "Twice",
			"middle": "Then",
		},
		"same": "value",
	}

	t.Run("remote newer wins differing scalars", func(t *testing.T) {
		res, err := Resolve(updateConflict(100, 200, local, remote), AutoMerge, ResolveOptions{})
		require.NoError(t, err)
		assert.Equal(t, AutoMerge, res.Strategy)
		assert.Nil(t, res.Winner)

		assert.Equal(t, models.Document{
			"title":  "Remote title",
			"author": "ann",
			"genre":  "horror",
			"passages": map[string]any{
				"start":  "Twice",
				"end":    "Fin",
				"middle": "Then",
			},
			"same": "value",
		}, res.Documents["story-2"])
	})

	t.Run("tie favors local", func(t *testing.T) {
		res, err := Resolve(updateConflict(200, 200, local, remote), AutoMerge, ResolveOptions{})
		require.NoError(t, err)
		merged := res.Documents["story-2"]
		assert.Equal(t, "Local title", merged.Title())
		assert.Equal(t, "Once", merged["passages"].(map[string]any)["start"])
	})

	t.Run("inputs untouched", func(t *testing.T) {
		c := updateConflict(100, 200, local, remote)
		res, err := Resolve(c, AutoMerge, ResolveOptions{})
		require.NoError(t, err)

		res.Documents["story-2"]["passages"].(map[string]any)["end"] = "changed"
		assert.Equal(t, "Fin", local["passages"].(map[string]any)["end"])
	})

	t.Run("delete falls back to last write wins", func(t *testing.T) {
		c := Conflict{
			Key:    "story-2",
			Local:  op(OpDelete, "story-2", "a", 300, nil),
			Remote: op(OpUpdate, "story-2", "b", 200, remote),
		}
		res, err := Resolve(c, AutoMerge, ResolveOptions{})
		require.NoError(t, err)
		assert.Equal(t, LastWriteWins, res.Strategy)
		assert.Equal(t, []string{"story-2"}, res.Deleted)
	})
}

func TestResolve_KeepBoth(t *testing.T) {
	c := updateConflict(100, 200, models.Document{"title": "L"}, models.Document{"title": "R"})

	res, err := Resolve(c, KeepBoth, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, KeepBoth, res.Strategy)

	require.Len(t, res.Documents, 2)
	assert.NotContains(t, res.Documents, "story-2")

	localDoc, ok := res.Documents["story-2.local-device-l"]
	require.True(t, ok, "got keys %v", keysOf(res.Documents))
	remoteDoc, ok := res.Documents["story-2.remote-device-r"]
	require.True(t, ok, "got keys %v", keysOf(res.Documents))

	assert.Equal(t, "L", localDoc.Title())
	assert.Equal(t, map[string]any{
		"original_key": "story-2",
		"side":         SideLocal,
		"device_id":    "device-local-1234",
		"timestamp":    float64(100),
	}, localDoc[models.FieldConflict])
	assert.Equal(t, SideRemote, remoteDoc[models.FieldConflict].(map[string]any)["side"])

	// Синтезированные ключи допустимы для бэкендов
	for key := range res.Documents {
		assert.NoError(t, validation.ValidateKey(key))
	}

	// Исходные документы не получили служебное поле
	assert.NotContains(t, c.Local.Data, models.FieldConflict)
}

func TestResolve_KeepBothDisambiguates(t *testing.T) {
	c := updateConflict(100, 200, models.Document{"title": "L"}, models.Document{"title": "R"})
	c.Local.DeviceID = "same"
	c.Remote.DeviceID = "same"

	existing := map[string]bool{"story-2.local-same": true, "story-2.local-same-2": true}
	res, err := Resolve(c, KeepBoth, ResolveOptions{Exists: func(key string) bool { return existing[key] }})
	require.NoError(t, err)

	assert.Contains(t, res.Documents, "story-2.local-same-3")
	assert.Contains(t, res.Documents, "story-2.remote-same")
}

func TestResolve_KeepBothWithDelete(t *testing.T) {
	c := Conflict{
		Key:    "k",
		Local:  op(OpUpdate, "k", "abc", 100, models.Document{"title": "kept"}),
		Remote: op(OpDelete, "k", "xyz", 200, nil),
	}

	res, err := Resolve(c, KeepBoth, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "kept", res.Documents["k.local-abc"].Title())
}

func TestResolve_Manual(t *testing.T) {
	c := updateConflict(100, 200, models.Document{"title": "L"}, models.Document{"title": "R"})

	_, err := Resolve(c, Manual, ResolveOptions{})
	assert.ErrorIs(t, err, ErrNoResolver)

	res, err := Resolve(c, Manual, ResolveOptions{Resolver: func(c Conflict) (Resolution, error) {
		return Resolution{Documents: map[string]models.Document{c.Key: {"title": "picked"}}}, nil
	}})
	require.NoError(t, err)
	assert.Equal(t, Manual, res.Strategy)
	assert.Equal(t, "picked", res.Documents["story-2"].Title())

	boom := errors.New("user cancelled")
	_, err = Resolve(c, Manual, ResolveOptions{Resolver: func(Conflict) (Resolution, error) {
		return Resolution{}, boom
	}})
	assert.ErrorIs(t, err, boom)

	_, err = Resolve(c, Strategy("coin_flip"), ResolveOptions{})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestResolveAll(t *testing.T) {
	conflicts := []Conflict{
		updateConflict(100, 200, models.Document{"title": "a"}, models.Document{"title": "b"}),
		updateConflict(300, 200, models.Document{"title": "c"}, models.Document{"title": "d"}),
	}

	res, err := ResolveAll(conflicts, LastWriteWins, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b", res[0].Documents["story-2"].Title())
	assert.Equal(t, "c", res[1].Documents["story-2"].Title())

	_, err = ResolveAll(conflicts, Manual, ResolveOptions{})
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{LastWriteWins, AutoMerge, KeepBoth, Manual} {
		got, err := ParseStrategy(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStrategy("newest")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestShortDevice(t *testing.T) {
	assert.Equal(t, "6ba7b810", shortDevice("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.Equal(t, "a_b", shortDevice("a/b"))
	assert.Equal(t, "unknown", shortDevice(""))
}

func keysOf(docs map[string]models.Document) []string {
	out := make([]string, 0, len(docs))
	for k := range docs {
		out = append(out, k)
	}
	return out
}
