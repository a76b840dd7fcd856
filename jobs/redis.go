package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/imagescout/config"
	"github.com/use-agent/imagescout/models"
)

// RedisStore keeps jobs in redis so that any replica can answer status and
// download requests. Records and archives expire through key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg config.JobsConfig) (*RedisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("jobs: redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("jobs: redis ping failed: %w", err)
	}

	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = "imagescout:job:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix}, nil
}

func (s *RedisStore) Driver() string { return DriverRedis }

func (s *RedisStore) jobKey(id string) string { return s.prefix + id }

func (s *RedisStore) zipKey(id string) string { return s.prefix + id + ":zip" }

func (s *RedisStore) Save(ctx context.Context, job *models.ArchiveJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobs: marshal job: %w", err)
	}
	return s.client.Set(ctx, s.jobKey(job.ID), data, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.ArchiveJob, error) {
	raw, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}
	var job models.ArchiveJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("jobs: decode %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisStore) PutArchive(ctx context.Context, id string, data []byte) error {
	n, err := s.client.Exists(ctx, s.jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("jobs: check %s: %w", id, err)
	}
	if n == 0 {
		return notFound(id)
	}
	return s.client.Set(ctx, s.zipKey(id), data, s.ttl).Err()
}

func (s *RedisStore) Archive(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.zipKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("jobs: get archive %s: %w", id, err)
	}
	return data, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
