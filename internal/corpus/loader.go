// Package corpus loads raw documents from a corpus location into
// normalized text records with source metadata.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/normalize"
)

// ErrCorpusNotFound is returned when the corpus root does not exist.
var ErrCorpusNotFound = errors.New("corpus location not found")

// supportedExtensions is the loader's allow-list. Files outside it are
// skipped silently, not reported as failures.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
}

// Document is an immutable normalized text record. Re-ingestion of the
// same source path replaces the document wholesale.
type Document struct {
	ID         string
	SourcePath string
	Title      string
	Raw        []byte
	Text       string
}

// LoadFailure reports a single source that could not be loaded. Path
// is relative to the corpus root, matching Document.SourcePath.
type LoadFailure struct {
	Path string
	Err  error
}

// Loader enumerates readable document sources under a root directory.
type Loader struct {
	root   string
	logger *zap.Logger
}

// NewLoader creates a Loader for the given corpus root.
func NewLoader(root string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{root: root, logger: logger}
}

// Root returns the corpus root path.
func (l *Loader) Root() string {
	return l.root
}

// Load walks the corpus root and returns normalized documents plus the
// per-source failures. An individual unreadable or undecodable file
// never aborts the load; only a missing root is a hard error.
func (l *Loader) Load(ctx context.Context) ([]Document, []LoadFailure, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, l.root)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is not a directory", ErrCorpusNotFound, l.root)
	}

	var docs []Document
	var failures []LoadFailure

	walkErr := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			failures = append(failures, LoadFailure{Path: l.relPath(path), Err: err})
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != l.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		doc, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable source",
				zap.String("path", path),
				zap.Error(err),
			)
			failures = append(failures, LoadFailure{Path: l.relPath(path), Err: err})
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("walking corpus %s: %w", l.root, walkErr)
	}

	// WalkDir order is lexical per directory but make the full batch
	// order explicit; chunk identity and index reconciliation rely on a
	// reproducible document sequence.
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourcePath < docs[j].SourcePath })

	l.logger.Info("corpus loaded",
		zap.String("root", l.root),
		zap.Int("documents", len(docs)),
		zap.Int("failures", len(failures)),
	)

	return docs, failures, nil
}

// loadFile reads and normalizes a single source file.
func (l *Loader) loadFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading %s: %w", path, err)
	}

	text, err := normalize.Normalize(raw)
	if err != nil {
		return Document{}, fmt.Errorf("normalizing %s: %w", path, err)
	}

	rel := l.relPath(path)

	return Document{
		ID:         DocumentID(rel),
		SourcePath: rel,
		Title:      titleFromPath(rel),
		Raw:        raw,
		Text:       text,
	}, nil
}

// relPath converts a walk path to the root-relative slash form used
// for document identity.
func (l *Loader) relPath(path string) string {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

// DocumentID derives the stable identity for a source path.
func DocumentID(sourcePath string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(sourcePath)))
	return hex.EncodeToString(sum[:8])
}

func titleFromPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
