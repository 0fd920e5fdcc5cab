package export

import (
	"fmt"
	"path"
	"strings"

	"docrepo/internal/docengine"
)

// documentFilename derives a download filename for doc from its Name in
// the Document Index, stripped of its source extension and given ext in
// its place, so a PDF of api-guide.md downloads as api-guide.pdf rather
// than an export-specific title.
func documentFilename(doc docengine.Document, ext string) string {
	base := strings.TrimSuffix(doc.Name, path.Ext(doc.Name))
	slug := slugify(base)
	if slug == "" {
		slug = "document"
	}
	return slug + "." + ext
}

// slugify keeps a filename legible and shell-safe across platforms: ASCII
// alphanumerics plus hyphen/underscore survive, everything else (including
// whitespace) becomes a hyphen, and the result is capped well under
// filesystem limits.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 64 {
		slug = slug[:64]
	}
	return slug
}

// percentEncodeDataURL percent-encodes s for embedding in a data: URL.
// url.QueryEscape encodes spaces as '+', which data URLs decode literally
// rather than as a space, so it can't be reused here.
func percentEncodeDataURL(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			b.WriteRune(r)
		case r == ' ':
			b.WriteString("%20")
		default:
			for _, byt := range []byte(string(r)) {
				fmt.Fprintf(&b, "%%%02X", byt)
			}
		}
	}
	return b.String()
}
