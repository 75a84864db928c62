package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macawi-ai/domovoi/pkg/events"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func sampleEvents(t *testing.T, n int) []events.Event {
	t.Helper()
	log := events.NewLog(events.WithClock(fixedClock{time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}))
	id := uuid.New()
	for i := 0; i < n; i++ {
		_, err := log.Append(events.Interaction{Kind: events.Parasitism, Amount: float64(i)}, id)
		require.NoError(t, err)
	}
	return log.Snapshot()
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "objects")
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	key, err := s.Store(ctx, []byte("bundle"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "sha256:"))
	assert.Len(t, key, len(keyPrefix)+64)

	again, err := s.Store(ctx, []byte("bundle"))
	require.NoError(t, err)
	assert.Equal(t, key, again)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("bundle"), got)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.Delete(ctx, key))

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseKey(t *testing.T) {
	key, raw := digest([]byte("x"))
	got, err := parseKey(key)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	for _, bad := range []string{"", "md5:abcd", "sha256:zz", "sha256:abcd", "sha256:../../etc/passwd"} {
		_, err := parseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	puts    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts++
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(fake, "runs", "domovoi/")

	key, raw := digest([]byte("payload"))
	got, err := s.Store(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.Contains(t, fake.objects, "domovoi/"+raw+".blob")

	_, err = s.Store(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.puts)

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestBundleRoundTrip(t *testing.T) {
	evs := sampleEvents(t, 25)
	var buf bytes.Buffer
	require.NoError(t, WriteBundle(&buf, evs))

	got, err := ReadBundle(&buf)
	require.NoError(t, err)
	require.Len(t, got, 25)
	require.NoError(t, events.VerifyChain(got))
	assert.Equal(t, evs[24].Hash, got[24].Hash)
}

func TestReadBundle_Garbage(t *testing.T) {
	_, err := ReadBundle(bytes.NewReader([]byte("not zstd at all")))
	assert.Error(t, err)
}

func TestArchiveAndLoad(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	evs := sampleEvents(t, 5)

	m, err := Archive(ctx, s, "run-7", evs)
	require.NoError(t, err)
	assert.Equal(t, "run-7", m.RunID)
	assert.Equal(t, 5, m.Events)
	assert.Equal(t, evs[4].Hash, m.HeadHash)

	raw, err := s.Get(ctx, m.Hash)
	require.NoError(t, err)
	canonical, err := jcs.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, string(canonical), string(raw))

	loaded, got, err := Load(ctx, s, m.Hash)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
	assert.Len(t, got, 5)

	// Archiving the same log again is idempotent.
	again, err := Archive(ctx, s, "run-7", evs)
	require.NoError(t, err)
	assert.Equal(t, m.Hash, again.Hash)
}

func TestArchive_EmptyLog(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	m, err := Archive(ctx, s, "empty", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Events)
	assert.Empty(t, m.HeadHash)

	_, got, err := Load(ctx, s, m.Hash)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_DetectsMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	m, err := Archive(ctx, s, "run-1", sampleEvents(t, 3))
	require.NoError(t, err)

	forged := m
	forged.HeadHash = "sha256:" + string(bytes.Repeat([]byte("0"), 64))
	raw, err := json.Marshal(forged)
	require.NoError(t, err)
	forgedKey, err := s.Store(ctx, raw)
	require.NoError(t, err)

	_, _, err = Load(ctx, s, forgedKey)
	assert.ErrorIs(t, err, ErrManifestMismatch)
}

func TestNewStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	s, err := NewStoreFromConfig(ctx, Config{Type: StoreTypeNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewStoreFromConfig(ctx, Config{Type: StoreTypeFS, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = NewStoreFromConfig(ctx, Config{Type: StoreTypeS3})
	assert.Error(t, err)

	_, err = NewStoreFromConfig(ctx, Config{Type: StoreTypeGCS})
	assert.Error(t, err)

	_, err = NewStoreFromConfig(ctx, Config{Type: "tape"})
	assert.Error(t, err)
}
