package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UniquePath returns a path in dir that does not collide with an existing
// file. The first taken name gets a " (2)" suffix, then " (3)", and so on.
func UniquePath(dir, base, ext string) string {
	p := filepath.Join(dir, base+ext)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return p
	}
	for n := 2; ; n++ {
		p = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p
		}
	}
}

// relTo reports p relative to base for artifact records, falling back to p
// itself when the two do not share a prefix.
func relTo(base, p string) string {
	rel, err := filepath.Rel(base, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return filepath.ToSlash(rel)
}
