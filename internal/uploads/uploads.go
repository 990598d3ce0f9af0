package uploads

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// ImageRef points at a stored upload.
type ImageRef struct {
	OriginalFilename string
	StoragePath      string
	AccessURL        string
}

// Store keeps uploaded images on local disk under generated names.
type Store struct {
	dir     string
	baseURL string
	route   string
}

// New creates dir if needed. Stored files are reachable at
// baseURL + route + "/" + name when Handler is mounted on route.
func New(dir, baseURL, route string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		route:   "/" + strings.Trim(route, "/"),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes data under "<random hex>_<sanitized original name>".
func (s *Store) Save(originalName string, data []byte) (ImageRef, error) {
	name := uuid.New().String()
	name = strings.ReplaceAll(name, "-", "")
	if clean := SecureFilename(originalName); clean != "" {
		name += "_" + clean
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ImageRef{}, fmt.Errorf("failed to save image: %w", err)
	}

	slog.Debug("Image saved", "filename", name, "original", originalName, "bytes", len(data))

	return ImageRef{
		OriginalFilename: originalName,
		StoragePath:      path,
		AccessURL:        s.baseURL + s.route + "/" + url.PathEscape(name),
	}, nil
}

// Handler serves stored uploads by file name. Mount it with the route prefix
// stripped.
func (s *Store) Handler() http.Handler {
	fs := http.FileServer(http.Dir(s.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No directory listings.
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// SecureFilename reduces a client supplied name to an ASCII-only base name
// safe to use on any filesystem.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r > unicode.MaxASCII:
			continue
		case r == '/' || r == '\\' || unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '.' || r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}

	clean := strings.Join(strings.Fields(b.String()), "_")
	return strings.Trim(clean, "._")
}
