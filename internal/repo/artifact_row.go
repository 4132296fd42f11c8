package repo

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// artifactRow — строка таблицы artifacts.
type artifactRow struct {
	RunID      uuid.UUID
	JobID      string
	Name       string
	Path       string
	URI        *string
	Digest     *string
	Size       *int64
	Files      *int32
	RecordedAt time.Time
}

func newArtifactRow(runID uuid.UUID, a domain.Artifact) artifactRow {
	row := artifactRow{
		RunID:      runID,
		JobID:      a.JobID,
		Name:       a.Name,
		Path:       a.Path,
		RecordedAt: a.RecordedAt,
	}
	if h := a.Handle; h != nil {
		size := h.Size
		files := int32(h.Files)
		row.URI = nullString(h.URI)
		row.Digest = nullString(h.Digest)
		row.Size = &size
		row.Files = &files
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now()
	}
	return row
}

func (r artifactRow) args() []any {
	return []any{r.RunID, r.JobID, r.Name, r.Path, r.URI, r.Digest, r.Size, r.Files, r.RecordedAt}
}

func (r artifactRow) toDomain() domain.Artifact {
	a := domain.Artifact{
		JobID:      r.JobID,
		Name:       r.Name,
		Path:       r.Path,
		RecordedAt: r.RecordedAt,
	}
	if r.URI != nil {
		h := &domain.ArtifactHandle{URI: *r.URI}
		if r.Digest != nil {
			h.Digest = *r.Digest
		}
		if r.Size != nil {
			h.Size = *r.Size
		}
		if r.Files != nil {
			h.Files = int(*r.Files)
		}
		a.Handle = h
	}
	return a
}
