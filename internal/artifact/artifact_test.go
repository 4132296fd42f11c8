package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

// countingSink считает вызовы Store.
type countingSink struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (s *countingSink) Store(_ context.Context, jobID, name, _ string) (domain.ArtifactHandle, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return domain.ArtifactHandle{}, s.err
	}
	return domain.ArtifactHandle{URI: "mem://" + jobID + "/" + name}, nil
}

func TestCollector_Record(t *testing.T) {
	sink := &countingSink{}
	c := NewCollector(sink, nil)

	a, err := c.Record(context.Background(), "build-linux", "conveyor", "/w/conveyor")
	require.NoError(t, err)
	assert.Equal(t, "build-linux", a.JobID)
	assert.Equal(t, "/w/conveyor", a.Path)
	require.NotNil(t, a.Handle)
	assert.Equal(t, "mem://build-linux/conveyor", a.Handle.URI)

	got, ok := c.Get("build-linux", "conveyor")
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, err = c.Record(context.Background(), "build-linux", "conveyor", "/w/other")
	assert.ErrorIs(t, err, ErrAlreadyRecorded)
	assert.Equal(t, int32(1), sink.calls.Load())
}

func TestCollector_SameNameDifferentJobs(t *testing.T) {
	c := NewCollector(nil, nil)

	_, err := c.Record(context.Background(), "b", "bin", "x")
	require.NoError(t, err)
	_, err = c.Record(context.Background(), "a", "bin", "y")
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].JobID)
	assert.Nil(t, list[0].Handle)
}

func TestCollector_StorageError(t *testing.T) {
	sink := &countingSink{err: errors.New("bucket unavailable")}
	c := NewCollector(sink, nil)

	_, err := c.Record(context.Background(), "build", "bin", "x")

	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "build", sErr.JobID)
	assert.Contains(t, err.Error(), "bucket unavailable")

	_, ok := c.Get("build", "bin")
	assert.False(t, ok, "failed store must leave no mapping")
	assert.Zero(t, c.Count())
}

func TestCollector_ConcurrentSameKey(t *testing.T) {
	sink := &countingSink{delay: 10 * time.Millisecond}
	c := NewCollector(sink, nil)

	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Record(context.Background(), "job", "bin", "x")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyRecorded):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), dup.Load())
	assert.Equal(t, int32(1), sink.calls.Load())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSink_Store(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "dist", "conveyor"), "binary")
	writeFile(t, filepath.Join(work, "dist", "docs", "README"), "docs")
	writeFile(t, filepath.Join(work, "coverage.out"), "mode: set")

	base := t.TempDir()
	sink := NewFileSink(base)

	handle, err := sink.Store(context.Background(), "build-linux", "dist", filepath.Join(work, "dist"))
	require.NoError(t, err)
	assert.Equal(t, 2, handle.Files)
	assert.Equal(t, int64(len("binary")+len("docs")), handle.Size)
	assert.True(t, strings.HasPrefix(handle.Digest, "sha256:"))
	assert.True(t, strings.HasPrefix(handle.URI, "file://"))

	data, err := os.ReadFile(filepath.Join(base, "build-linux", "dist", "dist", "docs", "README"))
	require.NoError(t, err)
	assert.Equal(t, "docs", string(data))

	handle, err = sink.Store(context.Background(), "test", "coverage", filepath.Join(work, "*.out"))
	require.NoError(t, err)
	assert.Equal(t, 1, handle.Files)
	_, err = os.Stat(filepath.Join(base, "test", "coverage", "coverage.out"))
	assert.NoError(t, err)
}

func TestFileSink_NoFiles(t *testing.T) {
	_, err := NewFileSink(t.TempDir()).Store(context.Background(), "j", "n", filepath.Join(t.TempDir(), "*.exe"))
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestDigest_Deterministic(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "a"), "1")
	writeFile(t, filepath.Join(work, "b"), "2")

	files, err := collectFiles(filepath.Join(work, "*"))
	require.NoError(t, err)
	d1, _, err := digest(files)
	require.NoError(t, err)
	d2, _, err := digest(files)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

// fakeS3 сохраняет загруженные объекты.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_Store(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "conveyor.exe"), "exe")

	client := &fakeS3{objects: map[string]string{}}
	sink := NewS3SinkWithClient(client, "artifacts", "/ci/")

	handle, err := sink.Store(context.Background(), "build-windows", "bin", filepath.Join(work, "conveyor.exe"))
	require.NoError(t, err)

	assert.Equal(t, "s3://artifacts/ci/build-windows/bin/", handle.URI)
	assert.Equal(t, "exe", client.objects["artifacts/ci/build-windows/bin/conveyor.exe"])
	assert.Equal(t, int64(3), handle.Size)
}

func TestS3Sink_PutError(t *testing.T) {
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "x"), "x")

	sink := NewS3SinkWithClient(&fakeS3{err: errors.New("access denied")}, "b", "")
	_, err := sink.Store(context.Background(), "j", "n", filepath.Join(work, "x"))
	assert.ErrorContains(t, err, "access denied")
}

func TestScoped(t *testing.T) {
	client := &fakeS3{objects: map[string]string{}}
	work := t.TempDir()
	writeFile(t, filepath.Join(work, "x"), "x")

	sink := Scoped(NewS3SinkWithClient(client, "b", ""), "run-42")
	_, err := sink.Store(context.Background(), "job", "n", filepath.Join(work, "x"))
	require.NoError(t, err)
	assert.Contains(t, client.objects, "b/run-42/job/n/x")

	assert.Nil(t, Scoped(nil, "run"))
}
