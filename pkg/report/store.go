package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Store persists the most recent report per database.
type Store interface {
	Save(ctx context.Context, r *RunReport) error

	// Load returns the last report for the database, or nil if none was saved.
	Load(ctx context.Context, database string) (*RunReport, error)
}

// FileStore keeps the last report in a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(ctx context.Context, r *RunReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load reads the file. A report written for another database counts as missing.
func (s *FileStore) Load(ctx context.Context, database string) (*RunReport, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", s.path, err)
	}
	if r.Database != database {
		return nil, nil
	}
	return &r, nil
}

// RedisStore keeps one report per database under "<prefix>:<database>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(database string) string {
	return s.prefix + ":" + database
}

func (s *RedisStore) Save(ctx context.Context, r *RunReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return s.client.Set(ctx, s.key(r.Database), data, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, database string) (*RunReport, error) {
	data, err := s.client.Get(ctx, s.key(database)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", s.key(database), err)
	}
	return &r, nil
}

// NopStore discards reports.
type NopStore struct{}

func (NopStore) Save(context.Context, *RunReport) error { return nil }

func (NopStore) Load(context.Context, string) (*RunReport, error) { return nil, nil }
