package render

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/zjrosen/cardsmith/internal/editor"
)

// Naming controls output file names.
type Naming struct {
	Suffix    string // Template suffix
	Artist    string // Appended to the suffix when non-empty
	Overwrite bool   // Reuse an existing name instead of numbering
}

// OutputPath returns the file a card named name is saved to in dir:
// "Name (suffix).ext", where suffix joins the template suffix and artist.
// Without Overwrite, " (n)" is appended using the lowest n not already
// taken.
func OutputPath(dir, name string, ft editor.Filetype, n Naming) (string, error) {
	suffix := strings.TrimSpace(strings.Join(nonEmpty(n.Suffix, n.Artist), " "))
	base := name
	if suffix != "" {
		base = fmt.Sprintf("%s (%s)", name, suffix)
	}
	base = SanitizeFilename(base)
	ext := ft.Ext()

	path := filepath.Join(dir, base+ext)
	if n.Overwrite {
		return path, nil
	}
	for i := 1; ; i++ {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking output path: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
	}
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// maxBaseBytes leaves room for the extension and a " (n)" counter within
// the common 255 byte file name limit.
const maxBaseBytes = 200

// SanitizeFilename drops characters that are invalid in file names on
// common filesystems and shortens long names at a grapheme boundary.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, name))
	if len(name) <= maxBaseBytes {
		return name
	}

	var b strings.Builder
	state := -1
	rest := name
	for rest != "" {
		var cluster string
		cluster, rest, _, state = uniseg.StepString(rest, state)
		if b.Len()+len(cluster) > maxBaseBytes {
			break
		}
		b.WriteString(cluster)
	}
	return strings.TrimSpace(b.String())
}
