package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrArtifactNotFound is returned by GetArtifact when no artifact with the
// given id exists.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactRegistry is the content-addressable artifact store. It is
// Redis-backed for durability across a run (a runtime subprocess crash
// should not lose produced artifacts), with secondary indexes by task and
// type and a content-hash index for dedup.
type ArtifactRegistry struct {
	rdb      *redis.Client
	instance string
}

func NewArtifactRegistry(rdb *redis.Client, instance string) *ArtifactRegistry {
	return &ArtifactRegistry{rdb: rdb, instance: instance}
}

// Register stores art and returns its effective artifact id. If art has a
// non-empty ContentHash and a prior artifact shares that hash, the prior
// artifact's id is returned and no new entry is created.
func (r *ArtifactRegistry) Register(ctx context.Context, art Artifact) (string, error) {
	if art.ArtifactID == "" {
		art.ArtifactID = uuid.New().String()
	}

	if art.ContentHash != "" {
		// SetNX claims the hash index entry atomically: if another
		// registration already won it, that winner's id is the one every
		// caller with the same hash must converge on, per the dedup
		// invariant, so lose gracefully and return its id instead of ours.
		won, err := r.rdb.SetNX(ctx, ArtifactHashIndexKey(r.instance, art.ContentHash), art.ArtifactID, 0).Result()
		if err != nil {
			return "", fmt.Errorf("claim content-hash index: %w", err)
		}
		if !won {
			existing, err := r.rdb.Get(ctx, ArtifactHashIndexKey(r.instance, art.ContentHash)).Result()
			if err != nil {
				return "", fmt.Errorf("read content-hash index: %w", err)
			}
			return existing, nil
		}
	}

	payload, err := json.Marshal(art)
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, ArtifactKey(r.instance, art.ArtifactID), payload, 0)
	if art.Provenance.TaskID != "" {
		pipe.SAdd(ctx, ArtifactsByTaskKey(r.instance, art.Provenance.TaskID), art.ArtifactID)
	}
	if art.Type != "" {
		pipe.SAdd(ctx, ArtifactsByTypeKey(r.instance, art.Type), art.ArtifactID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	return art.ArtifactID, nil
}

// Get fetches an artifact by id.
func (r *ArtifactRegistry) Get(ctx context.Context, artifactID string) (*Artifact, error) {
	raw, err := r.rdb.Get(ctx, ArtifactKey(r.instance, artifactID)).Result()
	if err == redis.Nil {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal([]byte(raw), &art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &art, nil
}

// ByTask returns every artifact produced for taskID.
func (r *ArtifactRegistry) ByTask(ctx context.Context, taskID string) ([]*Artifact, error) {
	ids, err := r.rdb.SMembers(ctx, ArtifactsByTaskKey(r.instance, taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list artifacts by task: %w", err)
	}
	return r.fetchAll(ctx, ids)
}

// ByType returns every artifact of the given type.
func (r *ArtifactRegistry) ByType(ctx context.Context, artifactType string) ([]*Artifact, error) {
	ids, err := r.rdb.SMembers(ctx, ArtifactsByTypeKey(r.instance, artifactType)).Result()
	if err != nil {
		return nil, fmt.Errorf("list artifacts by type: %w", err)
	}
	return r.fetchAll(ctx, ids)
}

// ListAll scans every artifact stored for this instance. Used by the
// CLI's `warren hoard list`; not on the orchestrator's hot path.
func (r *ArtifactRegistry) ListAll(ctx context.Context) ([]*Artifact, error) {
	pattern := ArtifactKey(r.instance, "*")
	prefix := ArtifactKey(r.instance, "")

	var out []*Artifact
	iter := r.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if len(key) <= len(prefix) {
			continue
		}
		art, err := r.Get(ctx, key[len(prefix):])
		if errors.Is(err, ErrArtifactNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}
	return out, nil
}

func (r *ArtifactRegistry) fetchAll(ctx context.Context, ids []string) ([]*Artifact, error) {
	out := make([]*Artifact, 0, len(ids))
	for _, id := range ids {
		art, err := r.Get(ctx, id)
		if errors.Is(err, ErrArtifactNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	return out, nil
}

// UpdateValidation appends a ValidatorResult to artifactID's validator list.
func (r *ArtifactRegistry) UpdateValidation(ctx context.Context, artifactID string, result ValidatorResult) error {
	art, err := r.Get(ctx, artifactID)
	if err != nil {
		return err
	}
	if result.CheckedAt.IsZero() {
		result.CheckedAt = time.Now()
	}
	art.Validators = append(art.Validators, result)
	payload, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := r.rdb.Set(ctx, ArtifactKey(r.instance, artifactID), payload, 0).Err(); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Bless publishes a notification that artifactID has been accepted,
// letting interested subscribers (e.g. a reviewing agent) react.
func (r *ArtifactRegistry) Bless(ctx context.Context, bus *Bus, artifactID string) error {
	detail, _ := json.Marshal(map[string]string{"artifactId": artifactID})
	return bus.Publish(ctx, Event{Type: "ArtifactBlessed", Detail: detail})
}
