// Package category holds the static registry of goal categories. Goals
// reference a category by ID; definitions are configuration, never mutated
// at runtime.
package category

import (
	"errors"

	"github.com/hyperengineering/nestegg/internal/types"
)

// ErrUnknownCategory indicates a category ID that is not in the registry.
var ErrUnknownCategory = errors.New("unknown category")

// Defaults are the categories shipped with the application.
var Defaults = []types.Category{
	{ID: "travel", Name: "Travel", Emoji: "✈️", Color: "from-blue-500 to-cyan-500"},
	{ID: "tech", Name: "Technology", Emoji: "💻", Color: "from-purple-500 to-indigo-500"},
	{ID: "car", Name: "Car", Emoji: "🚗", Color: "from-green-500 to-emerald-500"},
	{ID: "home", Name: "Home", Emoji: "🏠", Color: "from-yellow-500 to-orange-500"},
	{ID: "education", Name: "Education", Emoji: "📚", Color: "from-red-500 to-pink-500"},
	{ID: "other", Name: "Other", Emoji: "🎯", Color: "from-gray-500 to-slate-500"},
}

// Registry is a read-only lookup of categories by ID.
type Registry struct {
	ordered []types.Category
	byID    map[string]types.Category
}

// NewRegistry builds a registry from the given categories, preserving order.
// Later duplicates of an ID are ignored.
func NewRegistry(categories []types.Category) *Registry {
	r := &Registry{byID: make(map[string]types.Category, len(categories))}
	for _, c := range categories {
		if _, dup := r.byID[c.ID]; dup {
			continue
		}
		r.byID[c.ID] = c
		r.ordered = append(r.ordered, c)
	}
	return r
}

// Default returns a registry of the built-in categories.
func Default() *Registry {
	return NewRegistry(Defaults)
}

// Lookup returns the category with the given ID.
func (r *Registry) Lookup(id string) (types.Category, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Contains reports whether id is a registered category.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// All returns a copy of every category in registration order.
func (r *Registry) All() []types.Category {
	out := make([]types.Category, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// IDs returns every registered category ID in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.ordered))
	for i, c := range r.ordered {
		ids[i] = c.ID
	}
	return ids
}
