package chidb

import (
	"fmt"
	"path/filepath"
	"time"

	cp "github.com/otiai10/copy"
)

// Backup copies the file at srcPath (the caller passes the file behind this
// BTree; Backup does not look it up) into dstDir as
// "<name>.<timestamp>.bak" and returns the new file's path. It is a
// whole-file snapshot rather than a WAL or journal: spec.md's non-goals explicitly
// exclude crash-recovery journaling, but a point-in-time copy is a
// different, much simpler, feature and one the corpus's otiai10/copy
// dependency fits directly.
func (bt *BTree) Backup(srcPath, dstDir string) (string, error) {
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(srcPath), time.Now().Format("20060102T150405"))
	dst := filepath.Join(dstDir, name)
	if err := cp.Copy(srcPath, dst); err != nil {
		return "", fmt.Errorf("backup %s to %s: %w", srcPath, dst, err)
	}
	return dst, nil
}
