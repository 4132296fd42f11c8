package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Ошибки артефактов.
var (
	// ErrAlreadyRecorded — артефакт с таким ключом уже записан.
	ErrAlreadyRecorded = errors.New("artifact already recorded")

	// ErrNoFiles — путь артефакта не совпал ни с одним файлом.
	ErrNoFiles = errors.New("artifact path matches no files")
)

// Sink — внешнее хранилище артефактов.
type Sink interface {
	// Store сохраняет файлы по пути (glob) и возвращает ссылку.
	Store(ctx context.Context, jobID, name, path string) (domain.ArtifactHandle, error)
}

// StorageError — хранилище не смогло сохранить артефакт.
type StorageError struct {
	JobID string
	Name  string
	Err   error
}

// Error реализует интерфейс error.
func (e *StorageError) Error() string {
	return fmt.Sprintf("store artifact %s/%s: %v", e.JobID, e.Name, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Scoped возвращает Sink, который добавляет prefix к jobID.
// Используется, чтобы артефакты разных runs не пересекались.
func Scoped(sink Sink, prefix string) Sink {
	if sink == nil {
		return nil
	}
	return &scopedSink{sink: sink, prefix: prefix}
}

type scopedSink struct {
	sink   Sink
	prefix string
}

func (s *scopedSink) Store(ctx context.Context, jobID, name, p string) (domain.ArtifactHandle, error) {
	return s.sink.Store(ctx, path.Join(s.prefix, jobID), name, p)
}

// sourceFile — файл артефакта: абсолютный путь и путь внутри артефакта.
type sourceFile struct {
	abs string
	rel string
}

// collectFiles раскрывает glob. Директории обходятся рекурсивно.
// Результат отсортирован по rel.
func collectFiles(pattern string) ([]sourceFile, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
	}

	var files []sourceFile
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, sourceFile{abs: m, rel: filepath.Base(m)})
			continue
		}

		root := filepath.Dir(m)
		err = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			files = append(files, sourceFile{abs: p, rel: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

// digest считает sha256 по содержимому файлов в порядке rel.
func digest(files []sourceFile) (string, int64, error) {
	h := sha256.New()
	var size int64
	for _, f := range files {
		n, err := hashInto(h, f.abs)
		if err != nil {
			return "", 0, err
		}
		size += n
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), size, nil
}

func hashInto(w io.Writer, p string) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}
