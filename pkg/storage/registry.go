package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
)

// Registry tracks the newest ArtifactSet per feature so serving can find it
// without scanning the artifact directory.
type Registry interface {
	Publish(ctx context.Context, set ArtifactSet) error
	Latest(ctx context.Context, feature string) (ArtifactSet, error)
}

// RedisRegistry keeps pointers under "artifacts:latest:<feature>" and the
// published history of a feature in a capped list.
type RedisRegistry struct {
	client  *redis.Client
	ttl     time.Duration
	history int64
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl, history: 20}
}

func latestKey(feature string) string {
	return fmt.Sprintf("artifacts:latest:%s", feature)
}

func historyKey(feature string) string {
	return fmt.Sprintf("artifacts:history:%s", feature)
}

func (r *RedisRegistry) Publish(ctx context.Context, set ArtifactSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, latestKey(set.Feature), data, r.ttl)
	pipe.LPush(ctx, historyKey(set.Feature), data)
	pipe.LTrim(ctx, historyKey(set.Feature), 0, r.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing %s: %w", set.Feature, err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"feature": set.Feature,
		"run_id":  set.RunID,
	}).Debug("Published artifact pointer")
	return nil
}

func (r *RedisRegistry) Latest(ctx context.Context, feature string) (ArtifactSet, error) {
	data, err := r.client.Get(ctx, latestKey(feature)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ArtifactSet{}, fmt.Errorf("%s: %w", feature, ErrNoArtifact)
	}
	if err != nil {
		return ArtifactSet{}, err
	}
	var set ArtifactSet
	if err := json.Unmarshal(data, &set); err != nil {
		return ArtifactSet{}, fmt.Errorf("decoding pointer for %s: %w", feature, err)
	}
	return set, nil
}

// History returns up to limit previously published sets, newest first.
func (r *RedisRegistry) History(ctx context.Context, feature string, limit int64) ([]ArtifactSet, error) {
	items, err := r.client.LRange(ctx, historyKey(feature), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ArtifactSet, 0, len(items))
	for _, item := range items {
		var set ArtifactSet
		if err := json.Unmarshal([]byte(item), &set); err != nil {
			continue
		}
		out = append(out, set)
	}
	return out, nil
}

// FileRegistry serves the latest pointers SaveResult already writes.
type FileRegistry struct {
	store *ArtifactStore
}

func NewFileRegistry(store *ArtifactStore) *FileRegistry {
	return &FileRegistry{store: store}
}

// Publish is a no-op: SaveResult has already moved the pointer file.
func (f *FileRegistry) Publish(context.Context, ArtifactSet) error {
	return nil
}

func (f *FileRegistry) Latest(_ context.Context, feature string) (ArtifactSet, error) {
	return f.store.Latest(feature)
}

// FallbackRegistry publishes to every registry and reads from the first one
// that has an answer.
type FallbackRegistry []Registry

func (fr FallbackRegistry) Publish(ctx context.Context, set ArtifactSet) error {
	var errs []error
	for _, r := range fr {
		if err := r.Publish(ctx, set); err != nil {
			logger.Log.WithError(err).WithField("feature", set.Feature).Warn("Registry publish failed")
			errs = append(errs, err)
		}
	}
	if len(errs) == len(fr) && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (fr FallbackRegistry) Latest(ctx context.Context, feature string) (ArtifactSet, error) {
	var lastErr error = fmt.Errorf("%s: %w", feature, ErrNoArtifact)
	for _, r := range fr {
		set, err := r.Latest(ctx, feature)
		if err == nil {
			return set, nil
		}
		lastErr = err
	}
	return ArtifactSet{}, lastErr
}
