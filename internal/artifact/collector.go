package artifact

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Collector — Artifact Collector одного выполнения workflow.
//
// Хранит отображение (job, имя) → артефакт. Записи разных ключей
// выполняются параллельно, одного ключа — последовательно.
type Collector struct {
	sink    Sink
	metrics *telemetry.Metrics

	mu      sync.Mutex
	locks   map[domain.ArtifactKey]*sync.Mutex
	records map[domain.ArtifactKey]domain.Artifact
}

// NewCollector создаёт Collector. Nil sink — сохраняется только отображение.
func NewCollector(sink Sink, metrics *telemetry.Metrics) *Collector {
	return &Collector{
		sink:    sink,
		metrics: metrics,
		locks:   make(map[domain.ArtifactKey]*sync.Mutex),
		records: make(map[domain.ArtifactKey]domain.Artifact),
	}
}

// Record сохраняет артефакт job.
//
// Вызывается только для job в статусе SUCCESS. Возвращает
// ErrAlreadyRecorded при повторной записи ключа и *StorageError
// при ошибке Sink.
func (c *Collector) Record(ctx context.Context, jobID, name, path string) (domain.Artifact, error) {
	key := domain.ArtifactKey{JobID: jobID, Name: name}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := c.Get(jobID, name); ok {
		return domain.Artifact{}, fmt.Errorf("%w: %s", ErrAlreadyRecorded, key)
	}

	artifact := domain.Artifact{
		JobID: jobID,
		Name:  name,
		Path:  path,
	}

	if c.sink != nil {
		handle, err := c.sink.Store(ctx, jobID, name, path)
		if err != nil {
			c.metrics.ArtifactRecorded(false)
			return domain.Artifact{}, &StorageError{JobID: jobID, Name: name, Err: err}
		}
		artifact.Handle = &handle
	}
	artifact.RecordedAt = time.Now()

	c.mu.Lock()
	c.records[key] = artifact
	c.mu.Unlock()

	c.metrics.ArtifactRecorded(true)
	return artifact, nil
}

// keyLock возвращает mutex ключа, создавая его при необходимости.
func (c *Collector) keyLock(key domain.ArtifactKey) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}

// Get возвращает записанный артефакт.
func (c *Collector) Get(jobID, name string) (domain.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.records[domain.ArtifactKey{JobID: jobID, Name: name}]
	return a, ok
}

// List возвращает все записанные артефакты, отсортированные по (job, имя).
func (c *Collector) List() []domain.Artifact {
	c.mu.Lock()
	list := make([]domain.Artifact, 0, len(c.records))
	for _, a := range c.records {
		list = append(list, a)
	}
	c.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].JobID != list[j].JobID {
			return list[i].JobID < list[j].JobID
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Count возвращает число записанных артефактов.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}
