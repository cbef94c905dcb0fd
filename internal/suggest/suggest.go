// internal/suggest/suggest.go
//
// Autocomplete suggestions for bird-name guesses.
//
// Responsibilities:
//   - Filter a name catalog by case-folded substring match.
//   - Hold the last-known catalog, seeded from a file or embedded defaults.
//   - Refresh the catalog from the upstream list, keeping the old value on failure.
//
// Initialization behavior (LoadCatalog):
//   1. If path is non-empty, names are read one per line from that file.
//   2. Otherwise (or if the file yields nothing) the embedded
//      default_names.txt is used.
//
// Blank lines and lines starting with '#' are ignored.

package suggest

import (
	"bufio"
	"context"
	_ "embed"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

// DisplayLimit is how many suggestions the UI shows per keystroke.
const DisplayLimit = 5

//go:embed default_names.txt
var embeddedNames string

// Suggest returns every catalog entry containing query (case-folded),
// sorted ascending. An empty query yields no suggestions.
func Suggest(query string, catalog []string) []string {
	if query == "" {
		return []string{}
	}
	fold := cases.Fold()
	q := fold.String(query)
	out := []string{}
	for _, name := range catalog {
		if strings.Contains(fold.String(name), q) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// NamesFetcher loads the current list of valid bird names.
type NamesFetcher interface {
	FetchNames(ctx context.Context) ([]string, error)
}

// Catalog is the last-known set of valid subject names.
// Safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	names []string // sorted, deduplicated
}

// NewCatalog builds a catalog from names.
func NewCatalog(names []string) *Catalog {
	c := &Catalog{}
	c.set(names)
	return c
}

// LoadCatalog reads names from path, falling back to the embedded defaults.
func LoadCatalog(path string) (*Catalog, error) {
	if path != "" {
		names, err := readNameFile(path)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return NewCatalog(names), nil
		}
		log.Warn().Str("path", path).Msg("names file empty, using embedded defaults")
	}
	return NewCatalog(normalizeLines(embeddedNames)), nil
}

// Names returns a copy of the catalog.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.names...)
}

// Len reports the number of names.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Suggest filters the catalog; see the package-level Suggest.
func (c *Catalog) Suggest(query string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Suggest(query, c.names)
}

// Top is Suggest truncated to limit entries (DisplayLimit when limit <= 0).
func (c *Catalog) Top(query string, limit int) []string {
	if limit <= 0 {
		limit = DisplayLimit
	}
	out := c.Suggest(query)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Refresh replaces the catalog with the upstream list. Failures and empty
// lists are logged and leave the last-known catalog in place.
func (c *Catalog) Refresh(ctx context.Context, f NamesFetcher) {
	names, err := f.FetchNames(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("refresh bird names")
		return
	}
	names = clean(names)
	if len(names) == 0 {
		log.Warn().Msg("refresh bird names: upstream list empty")
		return
	}
	c.set(names)
	log.Info().Int("names", len(names)).Msg("bird names refreshed")
}

func (c *Catalog) set(names []string) {
	names = clean(names)
	c.mu.Lock()
	c.names = names
	c.mu.Unlock()
}

// clean trims, drops blanks and duplicates, and sorts.
func clean(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func readNameFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if n, ok := parseLine(sc.Text()); ok {
			out = append(out, n)
		}
	}
	return out, sc.Err()
}

func normalizeLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if n, ok := parseLine(line); ok {
			out = append(out, n)
		}
	}
	return out
}

func parseLine(line string) (string, bool) {
	n := strings.TrimSpace(line)
	if n == "" || strings.HasPrefix(n, "#") {
		return "", false
	}
	return n, true
}
