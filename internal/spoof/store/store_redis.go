package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"vigil/internal/spoof"
	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
)

const (
	lastSampleKeyPrefix = "loc:last:"
	historyKeyPrefix    = "loc:hist:"
	historyMaxLength    = 100
)

// RedisLocationStore is the distributed location history store. The latest
// sample sits under its own key for O(1) detector reads; a capped history
// list is kept alongside for review tooling.
type RedisLocationStore struct {
	client *redis.Client
}

func NewRedisLocationStore(client *redis.Client) *RedisLocationStore {
	return &RedisLocationStore{client: client}
}

func (s *RedisLocationStore) LastSample(ctx context.Context, subjectID id.SubjectID) (*spoof.LocationSample, error) {
	raw, err := s.client.Get(ctx, lastSampleKeyPrefix+subjectID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last location sample: %w", err)
	}

	var sample spoof.LocationSample
	if err := json.Unmarshal(raw, &sample); err != nil {
		return nil, fmt.Errorf("decode last location sample: %w", err)
	}
	return &sample, nil
}

func (s *RedisLocationStore) Append(ctx context.Context, sample spoof.LocationSample) error {
	raw, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("encode location sample: %w", err)
	}

	subject := sample.SubjectID.String()
	pipe := s.client.Pipeline()
	pipe.Set(ctx, lastSampleKeyPrefix+subject, raw, 0)
	pipe.LPush(ctx, historyKeyPrefix+subject, raw)
	pipe.LTrim(ctx, historyKeyPrefix+subject, 0, historyMaxLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append location sample: %w", err)
	}
	return nil
}
