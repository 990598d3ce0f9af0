package catalog

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrCatalogLoad is returned when the class index or species metadata source
// is missing or malformed.
var ErrCatalogLoad = errors.New("catalog load failed")

// Index is the class position the classifier was trained with.
type Index = int

const notAvailable = "N/A"

// Record describes one known species.
type Record struct {
	ID            Index
	Label         string
	DisplayName   string
	AlternateName string
	Taxonomy      string
	Status        string
}

// Unknown is returned by Resolve for indices the catalog does not know.
var Unknown = Record{
	ID:            -1,
	Label:         "Unknown",
	DisplayName:   "Unknown",
	AlternateName: notAvailable,
	Taxonomy:      notAvailable,
	Status:        notAvailable,
}

// Catalog maps class indices to species records. It is never mutated after
// Load, so concurrent readers need no locking.
type Catalog struct {
	records map[Index]Record
}

// Metadata CSV columns.
const (
	colSpeciesName    = "Species Name"
	colScientificName = "Scientific Name"
	colTaxonomy       = "Taxonomy"
	colStatus         = "Status"
)

// Load reads the class index JSON ({"label": index}) and the species metadata
// CSV and joins them on the normalized species name.
func Load(classIndexPath, metadataPath string) (*Catalog, error) {
	indices, err := loadClassIndices(classIndexPath)
	if err != nil {
		return nil, err
	}

	meta, err := loadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	records := make(map[Index]Record, len(indices))
	missing := 0
	for label, idx := range indices {
		rec := Record{
			ID:            idx,
			Label:         label,
			DisplayName:   label,
			AlternateName: notAvailable,
			Taxonomy:      notAvailable,
			Status:        notAvailable,
		}
		if row, ok := meta[normalizeName(label)]; ok {
			rec.DisplayName = row.DisplayName
			rec.AlternateName = row.AlternateName
			rec.Taxonomy = row.Taxonomy
			rec.Status = row.Status
		} else {
			missing++
			slog.Warn("No metadata row for class", "label", label, "index", idx)
		}
		records[idx] = rec
	}

	slog.Info("Catalog loaded", "classes", len(records), "metadata_rows", len(meta), "missing_metadata", missing)

	return &Catalog{records: records}, nil
}

// New builds a catalog from already validated records. Mostly useful for tests
// and tools that ship their own label set.
func New(records []Record) (*Catalog, error) {
	m := make(map[Index]Record, len(records))
	for _, r := range records {
		if r.ID < 0 {
			return nil, fmt.Errorf("%w: negative index %d for %q", ErrCatalogLoad, r.ID, r.Label)
		}
		if _, dup := m[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrCatalogLoad, r.ID)
		}
		m[r.ID] = r
	}
	return &Catalog{records: m}, nil
}

// Resolve always returns a record; unknown indices yield Unknown.
func (c *Catalog) Resolve(idx Index) Record {
	if rec, ok := c.Lookup(idx); ok {
		return rec
	}
	return Unknown
}

func (c *Catalog) Lookup(idx Index) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	rec, ok := c.records[idx]
	return rec, ok
}

func (c *Catalog) Size() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// Span is the largest known index plus one: the length of the score vector
// the classifier produces. It exceeds Size when the class index file has gaps.
func (c *Catalog) Span() int {
	if c == nil {
		return 0
	}
	span := 0
	for idx := range c.records {
		if idx+1 > span {
			span = idx + 1
		}
	}
	return span
}

func loadClassIndices(path string) (map[string]Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read class indices: %v", ErrCatalogLoad, err)
	}

	var raw map[string]Index
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse class indices: %v", ErrCatalogLoad, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: class indices file %s is empty", ErrCatalogLoad, path)
	}

	seen := make(map[Index]string, len(raw))
	for label, idx := range raw {
		if idx < 0 {
			return nil, fmt.Errorf("%w: negative index %d for %q", ErrCatalogLoad, idx, label)
		}
		if other, dup := seen[idx]; dup {
			return nil, fmt.Errorf("%w: index %d assigned to both %q and %q", ErrCatalogLoad, idx, other, label)
		}
		seen[idx] = label
	}
	return raw, nil
}

func loadMetadata(path string) (map[string]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open metadata: %v", ErrCatalogLoad, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read metadata header: %v", ErrCatalogLoad, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{colSpeciesName, colScientificName, colTaxonomy, colStatus} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: metadata missing column %q", ErrCatalogLoad, required)
		}
	}

	field := func(row []string, name string) string {
		i := cols[name]
		if i >= len(row) {
			return notAvailable
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			return notAvailable
		}
		return v
	}

	out := make(map[string]Record)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read metadata row: %v", ErrCatalogLoad, err)
		}

		name := field(row, colSpeciesName)
		if name == notAvailable {
			continue
		}
		out[normalizeName(name)] = Record{
			DisplayName:   name,
			AlternateName: field(row, colScientificName),
			Taxonomy:      field(row, colTaxonomy),
			Status:        field(row, colStatus),
		}
	}
	return out, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}
