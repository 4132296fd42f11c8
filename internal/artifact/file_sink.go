package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shaiso/Conveyor/internal/domain"
)

// FileSink копирует артефакты в {BaseDir}/{jobID}/{name}/.
type FileSink struct {
	BaseDir string
}

// NewFileSink создаёт FileSink.
func NewFileSink(baseDir string) *FileSink {
	return &FileSink{BaseDir: baseDir}
}

// Store копирует файлы, совпавшие с path.
func (s *FileSink) Store(ctx context.Context, jobID, name, path string) (domain.ArtifactHandle, error) {
	files, err := collectFiles(path)
	if err != nil {
		return domain.ArtifactHandle{}, err
	}

	dest := filepath.Join(s.BaseDir, filepath.FromSlash(jobID), name)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return domain.ArtifactHandle{}, fmt.Errorf("create artifact dir: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return domain.ArtifactHandle{}, err
		}
		if err := copyFile(f.abs, filepath.Join(dest, filepath.FromSlash(f.rel))); err != nil {
			return domain.ArtifactHandle{}, err
		}
	}

	sum, size, err := digest(files)
	if err != nil {
		return domain.ArtifactHandle{}, err
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		abs = dest
	}

	return domain.ArtifactHandle{
		URI:    "file://" + filepath.ToSlash(abs),
		Digest: sum,
		Size:   size,
		Files:  len(files),
	}, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
