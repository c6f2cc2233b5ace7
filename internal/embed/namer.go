package embed

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength bounds the stem of a generated filename.
const MaxNameLength = 100

var disallowedNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\s]`)

// NormalizeTitle turns a title into a filesystem-safe stem: decomposed to
// ASCII, restricted to letters, digits, underscore, hyphen and spaces,
// trimmed and cut to MaxNameLength.
func NormalizeTitle(title string) string {
	decomposed := norm.NFKD.String(title)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(disallowedNameChars.ReplaceAllString(b.String(), ""))
	if len(cleaned) > MaxNameLength {
		cleaned = strings.TrimSpace(cleaned[:MaxNameLength])
	}
	return cleaned
}

// Namer hands out unique filenames within one destination directory. A name
// is taken if it exists on disk or was already handed out by this Namer.
type Namer struct {
	dir string

	mu       sync.Mutex
	reserved map[string]struct{}
}

func NewNamer(dir string) *Namer {
	return &Namer{dir: dir, reserved: make(map[string]struct{})}
}

// Reserve returns the first free name among stem+ext, stem_1+ext, stem_2+ext
// and so on.
func (n *Namer) Reserve(stem, ext string) (string, error) {
	if stem == "" {
		return "", errors.New("embed: empty name stem")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := 0; ; i++ {
		candidate := stem + ext
		if i > 0 {
			candidate = stem + "_" + strconv.Itoa(i) + ext
		}
		if _, taken := n.reserved[candidate]; taken {
			continue
		}
		if _, err := os.Lstat(filepath.Join(n.dir, candidate)); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		n.reserved[candidate] = struct{}{}
		return candidate, nil
	}
}

// Release frees a reserved name that was never written.
func (n *Namer) Release(name string) {
	n.mu.Lock()
	delete(n.reserved, name)
	n.mu.Unlock()
}

// stemFor picks the output stem for a record, falling back to the source
// filename when the title normalizes to nothing.
func stemFor(title, source string) string {
	if stem := NormalizeTitle(title); stem != "" {
		return stem
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if stem := NormalizeTitle(base); stem != "" {
		return stem
	}
	return "asset"
}
