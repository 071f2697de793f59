package attachments

import (
	"path"
	"strings"
)

const maxFilenameLen = 128

// SanitizeFilename reduces an uploaded filename to a flat, safe name. Any
// directory part is dropped (both / and \ count as separators), characters
// outside [A-Za-z0-9._-] become '_', leading dots are stripped, and the result
// is capped at 128 bytes, keeping a short extension.
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFilename
	}

	var b strings.Builder
	for _, r := range name {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if strings.Trim(out, "_.") == "" {
		return "", ErrInvalidFilename
	}

	if len(out) > maxFilenameLen {
		ext := path.Ext(out)
		if len(ext) > 16 {
			ext = ""
		}
		out = out[:maxFilenameLen-len(ext)] + ext
	}
	return out, nil
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}
