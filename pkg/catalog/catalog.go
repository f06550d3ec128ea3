// Package catalog maps mood categories to the tracks that can be played for
// them. A Catalog is validated once at load time and never mutated.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/moodbox/internal/httpc"
	"github.com/teslashibe/moodbox/pkg/mood"
)

// ErrCatalogMisconfigured is returned when a catalog cannot serve every
// category. It is fatal at load time.
var ErrCatalogMisconfigured = errors.New("catalog: misconfigured")

//go:embed default.yaml
var defaultYAML []byte

// Track describes one playable item. AssetRef is opaque to everything but
// the playback sink.
type Track struct {
	Title    string        `yaml:"title" json:"title"`
	Artist   string        `yaml:"artist" json:"artist"`
	AssetRef string        `yaml:"asset" json:"asset_ref"`
	Category mood.Category `yaml:"category" json:"category"`
}

// Catalog is an immutable category → tracks table.
type Catalog struct {
	byCategory map[mood.Category][]Track
	size       int
}

type document struct {
	Tracks []Track `yaml:"tracks"`
}

// New validates tracks and builds a catalog. Every category must have at
// least one track and every track needs a title and an asset reference.
func New(tracks []Track) (*Catalog, error) {
	c := &Catalog{byCategory: make(map[mood.Category][]Track)}

	var problems []error
	for i, t := range tracks {
		cat, err := mood.ParseCategory(string(t.Category))
		if err != nil {
			problems = append(problems, fmt.Errorf("track %d (%q): %w", i, t.Title, err))
			continue
		}
		t.Category = cat
		t.Title = strings.TrimSpace(t.Title)
		t.AssetRef = strings.TrimSpace(t.AssetRef)
		if t.Title == "" {
			problems = append(problems, fmt.Errorf("track %d: empty title", i))
			continue
		}
		if t.AssetRef == "" {
			problems = append(problems, fmt.Errorf("track %d (%q): empty asset", i, t.Title))
			continue
		}
		c.byCategory[cat] = append(c.byCategory[cat], t)
		c.size++
	}

	for _, cat := range mood.Categories() {
		if len(c.byCategory[cat]) == 0 {
			problems = append(problems, fmt.Errorf("category %s has no tracks", cat))
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrCatalogMisconfigured, errors.Join(problems...))
	}
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCatalogMisconfigured, err)
	}
	return New(doc.Tracks)
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// LoadURL fetches a YAML catalog over HTTP.
func LoadURL(ctx context.Context, url string) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, httpc.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog invalid: %v", err))
	}
	return c
}

// TracksFor returns a copy of the category's tracks. The result is never
// empty for a valid category.
func (c *Catalog) TracksFor(cat mood.Category) []Track {
	tracks := c.byCategory[cat]
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}

// Categories returns the categories in canonical order.
func (c *Catalog) Categories() []mood.Category {
	return mood.Categories()
}

// Len returns the total number of tracks.
func (c *Catalog) Len() int {
	return c.size
}

// All returns every track grouped by category in canonical order.
func (c *Catalog) All() []Track {
	out := make([]Track, 0, c.size)
	for _, cat := range mood.Categories() {
		out = append(out, c.byCategory[cat]...)
	}
	return out
}
