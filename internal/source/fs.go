package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// FS reads resources from an afero filesystem.
type FS struct {
	fsys afero.Fs
}

// NewFS creates a source over fsys. Writes through the source are impossible;
// fsys is wrapped read-only.
func NewFS(fsys afero.Fs) *FS {
	return &FS{fsys: afero.NewReadOnlyFs(fsys)}
}

// FromIOFS creates a source over an io/fs filesystem such as embed.FS.
func FromIOFS(fsys fs.FS) *FS {
	return NewFS(afero.FromIOFS{FS: fsys})
}

// Dir creates a source rooted at a local directory. Reads cannot escape root.
func Dir(root string) (*FS, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", root)
	}
	return NewFS(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// Read implements Source.
func (s *FS) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned, err := Clean(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fsys, cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notExist(name)
		}
		return nil, err
	}
	return data, nil
}
