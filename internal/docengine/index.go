package docengine

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"
)

// Document is a single text file tracked by the Document Index.
type Document struct {
	RelativePath string
	Name         string
	FileType     FileType
	SizeBytes    int64
	ModTime      time.Time
}

// DocumentContent is a Document plus its decoded content.
type DocumentContent struct {
	Document
	Content string
}

var defaultIgnoredDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"target":       {},
	"dist":         {},
}

// ListDocuments walks worktreeRoot depth-first, lexicographically within
// each directory, and returns every regular file that the Path Policy
// classifies as a document. The result is eagerly materialized and never
// live (spec §4.2): call it again to observe a fresh state.
func ListDocuments(worktreeRoot string, extraIgnored []string) ([]Document, error) {
	ignored := make(map[string]struct{}, len(defaultIgnoredDirs)+len(extraIgnored))
	for name := range defaultIgnoredDirs {
		ignored[name] = struct{}{}
	}
	for _, name := range extraIgnored {
		ignored[name] = struct{}{}
	}

	var documents []Document
	err := walkSorted(worktreeRoot, worktreeRoot, ignored, &documents)
	if err != nil {
		return nil, newError(KindIoFailure, "failed to walk worktree").withCause(err)
	}
	return documents, nil
}

func walkSorted(root, dir string, ignored map[string]struct{}, out *[]Document) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)

		if entry.Type()&fs.ModeSymlink != 0 {
			// Symlinks are never followed, regardless of target type.
			continue
		}

		if entry.IsDir() {
			if _, skip := ignored[name]; skip {
				continue
			}
			if err := walkSorted(root, full, ignored, out); err != nil {
				return err
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		rel, err := filepath.Rel(root, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		normalized, fileType, err := NormalizePath(rel)
		if err != nil {
			// Not a document (unsupported extension, dotfile, etc.) — skip
			// silently, this is expected traffic through the index, not a
			// failure of the walk itself.
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		*out = append(*out, Document{
			RelativePath: normalized,
			Name:         filepath.Base(normalized),
			FileType:     fileType,
			SizeBytes:    info.Size(),
			ModTime:      info.ModTime(),
		})
	}
	return nil
}

// ReadDocument reads a single document's content from the working tree,
// validating its path and encoding. It does not consult any cache (spec D3).
func ReadDocument(worktreeRoot string, relativePath string) (DocumentContent, error) {
	normalized, fileType, err := NormalizePath(relativePath)
	if err != nil {
		return DocumentContent{}, err
	}

	full := filepath.Join(worktreeRoot, filepath.FromSlash(normalized))
	info, err := os.Lstat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return DocumentContent{}, newError(KindNotFound, "document not found").withPath(normalized)
		}
		return DocumentContent{}, newError(KindIoFailure, "failed to stat document").withPath(normalized).withCause(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return DocumentContent{}, newError(KindNotFound, "document not found").withPath(normalized)
	}
	if !info.Mode().IsRegular() {
		return DocumentContent{}, newError(KindNotFound, "document not found").withPath(normalized)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return DocumentContent{}, newError(KindIoFailure, "failed to read document").withPath(normalized).withCause(err)
	}
	if !utf8.Valid(data) {
		return DocumentContent{}, newError(KindEncodingNotUtf8, "document is not valid UTF-8").withPath(normalized)
	}

	return DocumentContent{
		Document: Document{
			RelativePath: normalized,
			Name:         filepath.Base(normalized),
			FileType:     fileType,
			SizeBytes:    info.Size(),
			ModTime:      info.ModTime(),
		},
		Content: string(data),
	}, nil
}
