// Package corpus feeds a directory of JSON corpus documents, one per file,
// through the pipeline in lexical path order.
package corpus

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/logger"
)

// Processor is the pipeline entry point.
type Processor interface {
	ProcessDocument(ctx context.Context, r io.Reader) (index.DocID, error)
}

// Stats counts what happened to the matched files.
type Stats struct {
	Matched  int
	Indexed  int
	Rejected int
}

// Files returns the paths under root whose slash-separated relative path
// matches pattern, in lexical order.
func Files(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid corpus pattern %q", pattern)
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking corpus %s: %w", root, err)
	}
	return files, nil
}

// IndexDir indexes every matching file under root. Unreadable and rejected
// files are logged and skipped. A fatal pipeline error or a cancelled ctx
// stops the walk.
func IndexDir(ctx context.Context, root, pattern string, p Processor) (Stats, error) {
	log := logger.WithComponent("corpus")
	files, err := Files(root, pattern)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Matched: len(files)}
	log.Info("corpus scanned", "root", root, "pattern", pattern, "files", len(files))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		docID, err := indexFile(ctx, path, p)
		if err == nil {
			stats.Indexed++
			log.Debug("file indexed", "path", path, "doc_id", docID)
			continue
		}
		if !apperrors.IsRecoverable(err) {
			return stats, fmt.Errorf("indexing %s: %w", path, err)
		}
		stats.Rejected++
		log.Warn("file skipped", "path", path, "error", err)
	}
	return stats, nil
}

func indexFile(ctx context.Context, path string, p Processor) (index.DocID, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return p.ProcessDocument(ctx, f)
}
