package repo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestRunFilter_Normalize(t *testing.T) {
	tests := []struct {
		name   string
		in     RunFilter
		limit  int
		offset int
	}{
		{"defaults", RunFilter{}, 50, 0},
		{"capped", RunFilter{Limit: 10_000}, 500, 0},
		{"negative offset", RunFilter{Limit: 5, Offset: -3}, 5, 0},
		{"kept", RunFilter{Limit: 20, Offset: 40}, 20, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalize()
			assert.Equal(t, tt.limit, got.Limit)
			assert.Equal(t, tt.offset, got.Offset)
		})
	}
}

func TestArtifactRow(t *testing.T) {
	runID := uuid.New()
	recorded := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	withHandle := domain.Artifact{
		JobID:      "build-linux",
		Name:       "conveyor-linux-x64",
		Path:       "/work/bin/conveyor",
		RecordedAt: recorded,
		Handle: &domain.ArtifactHandle{
			URI:    "s3://artifacts/run/build-linux/conveyor-linux-x64/",
			Digest: "sha256:abc",
			Size:   1024,
			Files:  1,
		},
	}

	row := newArtifactRow(runID, withHandle)
	assert.Len(t, row.args(), 9)
	assert.Equal(t, withHandle, row.toDomain())

	bare := newArtifactRow(runID, domain.Artifact{JobID: "lint", Name: "report", Path: "report.txt"})
	assert.Nil(t, bare.URI)
	assert.False(t, bare.RecordedAt.IsZero())
	assert.Nil(t, bare.toDomain().Handle)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, isUniqueViolation(nil))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS runs")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS run_reports")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS artifacts")
}
