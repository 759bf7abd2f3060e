package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(database string, steps []string) *RunReport {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	r := New(database, start)
	for _, s := range steps {
		r.Add(KindCollection, s, OutcomeCreated, "")
	}
	r.Finish(start.Add(time.Second), nil)
	return r
}

func sameReport(a, b *RunReport) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Database != b.Database || a.Completed != b.Completed || a.Error != b.Error {
		return false
	}
	if !a.StartedAt.Equal(b.StartedAt) || !a.FinishedAt.Equal(b.FinishedAt) {
		return false
	}
	if len(a.Steps) != len(b.Steps) {
		return false
	}
	for i := range a.Steps {
		if a.Steps[i] != b.Steps[i] {
			return false
		}
	}
	return true
}

func TestStoreProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	tmpDir := t.TempDir()

	properties.Property("FileStore persists and loads reports", prop.ForAll(
		func(database string, steps []string) bool {
			s := NewFileStore(filepath.Join(tmpDir, "report.json"))
			want := sampleReport(database, steps)
			if err := s.Save(context.Background(), want); err != nil {
				return false
			}
			got, err := s.Load(context.Background(), database)
			return err == nil && sameReport(want, got)
		},
		gen.Identifier(),
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("RedisStore persists and loads reports", prop.ForAll(
		func(database string, steps []string) bool {
			s := NewRedisStore(redisClient, "mongoinit:report")
			want := sampleReport(database, steps)
			if err := s.Save(context.Background(), want); err != nil {
				return false
			}
			got, err := s.Load(context.Background(), database)
			return err == nil && sameReport(want, got)
		},
		gen.Identifier(),
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("file and redis backends are equivalent", prop.ForAll(
		func(database string, steps []string) bool {
			fileStore := NewFileStore(filepath.Join(tmpDir, "equiv.json"))
			redisStore := NewRedisStore(redisClient, "equiv")
			r := sampleReport(database, steps)

			if fileStore.Save(context.Background(), r) != nil || redisStore.Save(context.Background(), r) != nil {
				return false
			}
			fromFile, err := fileStore.Load(context.Background(), database)
			if err != nil {
				return false
			}
			fromRedis, err := redisStore.Load(context.Background(), database)
			if err != nil {
				return false
			}
			return sameReport(fromFile, fromRedis)
		},
		gen.Identifier(),
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFileStoreMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "none.json"))
	r, err := s.Load(context.Background(), "betting")
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestFileStoreOtherDatabase(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "report.json"))
	require.NoError(t, s.Save(context.Background(), sampleReport("staging", nil)))

	r, err := s.Load(context.Background(), "betting")
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background(), "betting")
	assert.Error(t, err)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "report.json"))
	require.NoError(t, s.Save(context.Background(), sampleReport("betting", []string{"users"})))
	require.NoError(t, s.Save(context.Background(), sampleReport("betting", []string{"games"})))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedisStoreMissingAndKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, "mongoinit:report")
	r, err := s.Load(context.Background(), "betting")
	assert.NoError(t, err)
	assert.Nil(t, r)

	require.NoError(t, s.Save(context.Background(), sampleReport("betting", nil)))
	assert.True(t, mr.Exists("mongoinit:report:betting"))

	mr.Set("mongoinit:report:broken", "{")
	_, err = s.Load(context.Background(), "broken")
	assert.Error(t, err)
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	assert.NoError(t, s.Save(context.Background(), sampleReport("betting", nil)))
	r, err := s.Load(context.Background(), "betting")
	assert.NoError(t, err)
	assert.Nil(t, r)
}
