// Package source holds the registry of job source adapters and helpers shared
// by the concrete adapters.
package source

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
)

// MaxDescription bounds stored descriptions, in runes.
const MaxDescription = 500

// Registry maps source ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[scraper.SourceID]scraper.Adapter
}

// NewRegistry returns a registry populated with adapters.
func NewRegistry(adapters ...scraper.Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[scraper.SourceID]scraper.Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Ids must be unique.
func (r *Registry) Register(a scraper.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := a.ID()
	if id == "" {
		return fmt.Errorf("source adapter has empty id")
	}
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("source %q already registered", id)
	}
	r.adapters[id] = a
	return nil
}

// Get returns the adapter for id.
func (r *Registry) Get(id scraper.SourceID) (scraper.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs lists registered sources in sorted order.
func (r *Registry) IDs() []scraper.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]scraper.SourceID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resolve returns the adapters for the requested ids, or for every registered
// source when ids is empty. Unknown ids are reported in the error.
func (r *Registry) Resolve(ids []scraper.SourceID) ([]scraper.Adapter, error) {
	if len(ids) == 0 {
		ids = r.IDs()
	}
	out := make([]scraper.Adapter, 0, len(ids))
	var unknown []string
	for _, id := range ids {
		a, ok := r.Get(id)
		if !ok {
			unknown = append(unknown, string(id))
			continue
		}
		out = append(out, a)
	}
	if len(unknown) > 0 {
		return out, fmt.Errorf("unknown sources: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// PlainText strips markup from an HTML fragment and truncates it to
// MaxDescription runes.
func PlainText(fragment string) string {
	text := fragment
	if strings.ContainsAny(fragment, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= MaxDescription {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxDescription])
}
