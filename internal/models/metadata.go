package models

import (
	"sort"
	"time"
)

// Metadata представляет запрашиваемую проекцию документа.
// Существует тогда и только тогда, когда существует сам документ.
type Metadata struct {
	CreatedAt time.Time `json:"created_at"` // CreatedAt неизменяемое время создания
	UpdatedAt time.Time `json:"updated_at"` // UpdatedAt монотонно растет при каждом сохранении
	ID        string    `json:"id"`         // ID ключ документа
	Title     string    `json:"title"`      // Title заголовок истории
	Tags      []string  `json:"tags"`       // Tags теги для фильтрации
	Size      int64     `json:"size"`       // Size размер сериализованного документа в байтах
}

// NewMetadata derives metadata for doc stored under key.
// Timestamps are left zero; backends own them.
func NewMetadata(key string, doc Document) (*Metadata, error) {
	size, err := doc.Size()
	if err != nil {
		return nil, err
	}
	return &Metadata{
		ID:    key,
		Title: doc.Title(),
		Tags:  doc.Tags(),
		Size:  size,
	}, nil
}

// Clone создает копию метаданных
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := *m
	if m.Tags != nil {
		clone.Tags = make([]string, len(m.Tags))
		copy(clone.Tags, m.Tags)
	}
	return &clone
}

// HasAnyTag reports whether m carries at least one of tags.
// An empty tags list matches everything.
func (m *Metadata) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		for _, have := range m.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// MetadataPatch is a partial metadata update. Nil fields are left untouched.
type MetadataPatch struct {
	Title *string   `json:"title,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p MetadataPatch) IsEmpty() bool {
	return p.Title == nil && p.Tags == nil
}

// Apply patches m in place.
func (p MetadataPatch) Apply(m *Metadata) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Tags != nil {
		tags := make([]string, len(*p.Tags))
		copy(tags, *p.Tags)
		m.Tags = tags
	}
}

// ListFilter задает фильтрацию и пагинацию для List.
type ListFilter struct {
	Tags   []string `json:"tags,omitempty"` // Tags документ подходит, если имеет хотя бы один тег
	Limit  int      `json:"limit"`          // Limit 0 означает без ограничения
	Offset int      `json:"offset"`
}

// SortByRecency orders metadata by UpdatedAt descending, ties by ID ascending.
func SortByRecency(list []*Metadata) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// ApplyFilter sorts, filters and paginates list. Used by backends without
// a query engine.
func ApplyFilter(list []*Metadata, filter ListFilter) []*Metadata {
	filtered := make([]*Metadata, 0, len(list))
	for _, m := range list {
		if m.HasAnyTag(filter.Tags) {
			filtered = append(filtered, m)
		}
	}

	SortByRecency(filtered)

	if filter.Offset > 0 {
		if filter.Offset >= len(filtered) {
			return []*Metadata{}
		}
		filtered = filtered[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(filtered) {
		filtered = filtered[:filter.Limit]
	}
	return filtered
}
