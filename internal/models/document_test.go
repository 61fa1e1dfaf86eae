package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDocument(t *testing.T) {
	tests := []struct {
		input   any
		want    Document
		name    string
		wantErr bool
	}{
		{
			name:  "ints become float64",
			input: map[string]any{"count": 3, "title": "A"},
			want:  Document{"count": float64(3), "title": "A"},
		},
		{
			name: "struct is flattened",
			input: struct {
				Title string   `json:"title"`
				Tags  []string `json:"tags"`
			}{Title: "Cave", Tags: []string{"horror"}},
			want: Document{"title": "Cave", "tags": []any{"horror"}},
		},
		{
			name:    "nil is rejected",
			input:   nil,
			wantErr: true,
		},
		{
			name:    "array is not an object",
			input:   []int{1, 2},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDocument(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDocument_Clone(t *testing.T) {
	original := Document{
		"title": "Story",
		"passages": map[string]any{
			"start": map[string]any{"text": "Once"},
		},
		"tags": []any{"a", "b"},
	}

	clone := original.Clone()
	require.True(t, original.Equal(clone))

	// Изменения в копии не должны влиять на оригинал
	clone["passages"].(map[string]any)["start"].(map[string]any)["text"] = "Twice"
	clone["tags"].([]any)[0] = "z"

	assert.Equal(t, "Once", original["passages"].(map[string]any)["start"].(map[string]any)["text"])
	assert.Equal(t, "a", original["tags"].([]any)[0])
	assert.False(t, original.Equal(clone))
}

func TestDocument_TitleAndTags(t *testing.T) {
	doc := Document{"title": "Lighthouse", "tags": []any{"mystery", 42, "sea"}}

	assert.Equal(t, "Lighthouse", doc.Title())
	assert.Equal(t, []string{"mystery", "sea"}, doc.Tags())
	assert.Empty(t, Document{"title": 5}.Title())
	assert.Nil(t, Document{}.Tags())
}

func TestDocument_MarshalRoundTrip(t *testing.T) {
	doc := Document{"title": "A", "nested": map[string]any{"n": float64(1)}}

	data, err := doc.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.True(t, doc.Equal(decoded))

	size, err := doc.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	_, err = UnmarshalDocument([]byte("null"))
	assert.Error(t, err)
}

func TestApplyFilter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []*Metadata{
		{ID: "a", Tags: []string{"draft"}, UpdatedAt: base},
		{ID: "b", Tags: []string{"final"}, UpdatedAt: base.Add(2 * time.Second)},
		{ID: "c", Tags: []string{"draft", "final"}, UpdatedAt: base.Add(time.Second)},
		{ID: "d", UpdatedAt: base.Add(time.Second)},
	}

	tests := []struct {
		name   string
		want   []string
		filter ListFilter
	}{
		{name: "no filter, recency order", filter: ListFilter{}, want: []string{"b", "c", "d", "a"}},
		{name: "tag filter", filter: ListFilter{Tags: []string{"draft"}}, want: []string{"c", "a"}},
		{name: "limit", filter: ListFilter{Limit: 2}, want: []string{"b", "c"}},
		{name: "offset", filter: ListFilter{Offset: 3}, want: []string{"a"}},
		{name: "offset past end", filter: ListFilter{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyFilter(list, tt.filter)
			ids := make([]string, 0, len(got))
			for _, m := range got {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMetadataPatch_Apply(t *testing.T) {
	m := &Metadata{ID: "k", Title: "old", Tags: []string{"x"}}
	title := "new"
	tags := []string{"y", "z"}

	assert.True(t, MetadataPatch{}.IsEmpty())

	MetadataPatch{Title: &title}.Apply(m)
	assert.Equal(t, "new", m.Title)
	assert.Equal(t, []string{"x"}, m.Tags)

	MetadataPatch{Tags: &tags}.Apply(m)
	assert.Equal(t, []string{"y", "z"}, m.Tags)

	// Патч не должен делить slice с вызывающим
	tags[0] = "changed"
	assert.Equal(t, "y", m.Tags[0])
}

func TestNewMetadata(t *testing.T) {
	doc := Document{"title": "Tower", "tags": []any{"fantasy"}}
	m, err := NewMetadata("tower", doc)
	require.NoError(t, err)

	assert.Equal(t, "tower", m.ID)
	assert.Equal(t, "Tower", m.Title)
	assert.Equal(t, []string{"fantasy"}, m.Tags)
	assert.Greater(t, m.Size, int64(0))
	assert.True(t, m.CreatedAt.IsZero())
}
