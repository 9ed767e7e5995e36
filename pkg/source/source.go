package source

import (
	"context"
	"fmt"
	"listing-hunter/pkg/models"
	"listing-hunter/pkg/normalize"
	"sort"
	"strings"
)

// Adapter fetches raw listings from one catalog. Fetch logs and skips
// search terms that fail; it returns models.ErrSourceUnreachable only when
// the catalog cannot be reached at all. Adapters never retry.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, terms []string) ([]models.RawRecord, error)
	Accessors() normalize.Accessors
	// AllowList turns configured search terms into brand allow-list
	// entries, undoing any query-specific encoding.
	AllowList(terms []string) []string
}

// PlusSeparated is the AllowList used by catalogs whose search terms are
// written with "+" between words.
func PlusSeparated(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, strings.ReplaceAll(t, "+", " "))
	}
	return out
}

// Options are the per-source settings an adapter factory may use.
type Options map[string]string

type Factory func(opts Options) (Adapter, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) New(name string, opts Options) (Adapter, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("adapter %s is not registered", name)
	}
	return f(opts)
}

func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
