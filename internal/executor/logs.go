package executor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// LogStore сохраняет полный вывод шагов.
type LogStore interface {
	// Open открывает writer для вывода шага и возвращает ссылку на лог.
	Open(runID, jobID string, index int, step string) (io.WriteCloser, string, error)
}

// FileLogStore хранит логи в файлах: {BaseDir}/{run}/{job}/{NN}-{step}.log.
type FileLogStore struct {
	BaseDir string
}

// NewFileLogStore создаёт хранилище логов в директории baseDir.
func NewFileLogStore(baseDir string) *FileLogStore {
	return &FileLogStore{BaseDir: baseDir}
}

// Open создаёт файл лога шага.
func (s *FileLogStore) Open(runID, jobID string, index int, step string) (io.WriteCloser, string, error) {
	dir := filepath.Join(s.BaseDir, sanitize(runID), sanitize(jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%02d-%s.log", index, sanitize(step)))
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create log file: %w", err)
	}
	return f, path, nil
}

// sanitize оставляет в имени только безопасные для файловой системы символы.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '/':
			b.WriteRune('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 || strings.Trim(b.String(), ".") == "" {
		return "step"
	}
	return b.String()
}

// tailBuffer хранит последние limit байт вывода.
// Потокобезопасен: stdout и stderr пишутся из разных goroutine.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(trimToRune(t.buf))
}

// trimToRune отбрасывает обрезанный UTF-8 символ в начале буфера.
func trimToRune(b []byte) []byte {
	for i := 0; i < len(b) && i < utf8.UTFMax; i++ {
		if utf8.RuneStart(b[i]) {
			return b[i:]
		}
	}
	return b
}
