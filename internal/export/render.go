package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdownRenderer renders Markdown documents to HTML. GFM tables, strikethrough
// and autolinks are enabled since Document content routinely carries them.
var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderContentHTML converts a Document's raw content to the HTML body used
// by the PDF/DOCX export pipeline. Markdown
// files render through goldmark; JSON files render as a formatted,
// syntax-neutral code block since there is no markup to interpret.
func RenderContentHTML(content string, fileType string) (string, error) {
	switch fileType {
	case "markdown":
		var buf bytes.Buffer
		if err := markdownRenderer.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("render markdown: %w", err)
		}
		return buf.String(), nil
	case "json":
		return renderJSONBlock(content), nil
	default:
		return fmt.Sprintf("<pre>%s</pre>\n", html.EscapeString(content)), nil
	}
}

// renderJSONBlock re-indents the document's JSON for readability and wraps it
// in a <pre><code> block. Malformed JSON is still rendered verbatim so export
// never fails on content the engine itself already accepted as a document.
func renderJSONBlock(content string) string {
	var v interface{}
	formatted := content
	if err := json.Unmarshal([]byte(content), &v); err == nil {
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			formatted = string(pretty)
		}
	}
	return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(formatted))
}
