package extract

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
)

// ListFiles walks the root and returns candidate file paths in lexical
// order. Hidden files and directories, "~$" office lock files, and
// files over the size cap are skipped. Extensions are not filtered
// here; Extract reports unsupported ones per file.
func (e *Extractor) ListFiles(ctx context.Context) ([]string, error) {
	var files []string

	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		name := d.Name()
		if d.IsDir() {
			if path != e.root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			// File vanished mid-walk; treat like any other skip.
			e.logger.Warn("skipping unreadable file", "path", path, "err", infoErr)
			return nil
		}
		if info.Size() > e.maxFileSize {
			e.logger.Warn("skipping oversized file", "path", path, "size", info.Size())
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
