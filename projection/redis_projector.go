// Package projection maintains an off-chain Redis read model built from chaincode events.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric/common/flogging"
	"github.com/redis/go-redis/v9"
)

var logger = flogging.MustGetLogger("petitionledger.projection")

const (
	trendingKey   = "petitions:trending"
	reputationKey = "users:reputation"
	aliasesKey    = "users:aliases"
)

// DefaultDedupTTL bounds how long an applied transaction id is remembered.
const DefaultDedupTTL = 7 * 24 * time.Hour

func petitionKey(id string) string { return "petition:" + id }
func milestonesKey(id string) string { return "petition:" + id + ":milestones" }
func categoryKey(c model.Category) string { return "petitions:category:" + string(c) }
func stateKey(st model.PetitionState) string { return "petitions:state:" + string(st) }
func appliedKey(txID string) string { return "event:applied:" + txID }

// RedisProjector applies PetitionEvent payloads to Redis. A transaction id is applied at most
// once while its marker lives, so replaying recent blocks is harmless.
type RedisProjector struct {
	client   *redis.Client
	dedupTTL time.Duration
}

// NewRedisProjector connects to redisURL and checks the connection. A non-positive dedupTTL
// uses DefaultDedupTTL.
func NewRedisProjector(redisURL string, dedupTTL time.Duration) (*RedisProjector, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisProjectorWithClient(client, dedupTTL), nil
}

// NewRedisProjectorWithClient creates a projector from an existing Redis client
func NewRedisProjectorWithClient(client *redis.Client, dedupTTL time.Duration) *RedisProjector {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &RedisProjector{client: client, dedupTTL: dedupTTL}
}

// ApplyPayload decodes one chaincode event payload and applies it.
func (p *RedisProjector) ApplyPayload(ctx context.Context, payload []byte) error {
	var ev model.PetitionEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return p.Apply(ctx, ev)
}

// Apply folds one event into the read model.
func (p *RedisProjector) Apply(ctx context.Context, ev model.PetitionEvent) error {
	if ev.Type == "" {
		return fmt.Errorf("event without type")
	}
	if ev.TxID != "" {
		fresh, err := p.client.SetNX(ctx, appliedKey(ev.TxID), string(ev.Type), p.dedupTTL).Result()
		if err != nil {
			return fmt.Errorf("mark event %s: %w", ev.TxID, err)
		}
		if !fresh {
			logger.Debugf("Skipping already applied event %s (%s)", ev.TxID, ev.Type)
			return nil
		}
	}

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return p.queue(ctx, pipe, ev)
	})
	if err != nil {
		if ev.TxID != "" {
			if errRm := p.client.Del(ctx, appliedKey(ev.TxID)).Err(); errRm != nil {
				logger.Warningf("Failed to unmark event %s after apply error: %v", ev.TxID, errRm)
			}
		}
		return fmt.Errorf("apply %s for petition %s: %w", ev.Type, ev.PetitionID, err)
	}
	logger.Debugf("Applied %s for petition %s", ev.Type, ev.PetitionID)
	return nil
}

func (p *RedisProjector) queue(ctx context.Context, pipe redis.Pipeliner, ev model.PetitionEvent) error {
	for identity, delta := range ev.ReputationDeltas {
		pipe.ZIncrBy(ctx, reputationKey, float64(delta), identity)
	}

	switch ev.Type {
	case model.EventAliasRegistered:
		if shortName := ev.Details["shortName"]; shortName != "" {
			pipe.HSet(ctx, aliasesKey, ev.ActorID, shortName)
		}
		return nil
	case model.EventDraftDeleted:
		pipe.Del(ctx, petitionKey(ev.PetitionID), milestonesKey(ev.PetitionID))
		pipe.ZRem(ctx, trendingKey, ev.PetitionID)
		pipe.SRem(ctx, categoryKey(ev.Category), ev.PetitionID)
		pipe.SRem(ctx, stateKey(ev.State), ev.PetitionID)
		return nil
	}

	if ev.PetitionID == "" {
		return fmt.Errorf("%s event without petition id", ev.Type)
	}
	pipe.HSet(ctx, petitionKey(ev.PetitionID), map[string]interface{}{
		"id":               ev.PetitionID,
		"creatorId":        ev.CreatorID,
		"category":         string(ev.Category),
		"state":            string(ev.State),
		"signatureCount":   ev.SignatureCount,
		"targetSignatures": ev.TargetSignatures,
		"updatedAt":        ev.Timestamp.Format(time.RFC3339),
	})

	if ev.Type == model.EventPetitionUpdated && ev.Details["field"] == "category" {
		pipe.SRem(ctx, categoryKey(model.Category(ev.Details["oldValue"])), ev.PetitionID)
	}
	pipe.SAdd(ctx, categoryKey(ev.Category), ev.PetitionID)

	if ev.PreviousState != "" && ev.PreviousState != ev.State {
		pipe.SRem(ctx, stateKey(ev.PreviousState), ev.PetitionID)
	}
	pipe.SAdd(ctx, stateKey(ev.State), ev.PetitionID)

	// Only petitions open for signatures trend.
	if ev.State == model.StatePublished {
		pipe.ZAdd(ctx, trendingKey, redis.Z{Score: float64(ev.SignatureCount), Member: ev.PetitionID})
	} else {
		pipe.ZRem(ctx, trendingKey, ev.PetitionID)
	}

	if ev.Milestone != nil {
		raw, err := json.Marshal(ev.Milestone)
		if err != nil {
			return fmt.Errorf("encode milestone: %w", err)
		}
		pipe.RPush(ctx, milestonesKey(ev.PetitionID), raw)
	}
	return nil
}

// Trending returns up to n open petitions with the most signatures first.
func (p *RedisProjector) Trending(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	ids, err := p.client.ZRevRange(ctx, trendingKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read trending: %w", err)
	}
	return ids, nil
}

func (p *RedisProjector) PetitionsInCategory(ctx context.Context, c model.Category) ([]string, error) {
	return p.sortedMembers(ctx, categoryKey(c))
}

func (p *RedisProjector) PetitionsInState(ctx context.Context, st model.PetitionState) ([]string, error) {
	return p.sortedMembers(ctx, stateKey(st))
}

func (p *RedisProjector) sortedMembers(ctx context.Context, key string) ([]string, error) {
	ids, err := p.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Reputation returns the projected reputation of identity; unknown identities score zero.
func (p *RedisProjector) Reputation(ctx context.Context, identity string) (int, error) {
	score, err := p.client.ZScore(ctx, reputationKey, identity).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reputation: %w", err)
	}
	return int(score), nil
}

// PetitionSummary is the projected snapshot of one petition.
type PetitionSummary struct {
	ID               string
	CreatorID        string
	Category         model.Category
	State            model.PetitionState
	SignatureCount   int
	TargetSignatures int
}

// Petition returns the projected snapshot, or redis.Nil if the petition is unknown.
func (p *RedisProjector) Petition(ctx context.Context, id string) (*PetitionSummary, error) {
	fields, err := p.client.HGetAll(ctx, petitionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read petition %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	count, _ := strconv.Atoi(fields["signatureCount"])
	target, _ := strconv.Atoi(fields["targetSignatures"])
	return &PetitionSummary{
		ID:               fields["id"],
		CreatorID:        fields["creatorId"],
		Category:         model.Category(fields["category"]),
		State:            model.PetitionState(fields["state"]),
		SignatureCount:   count,
		TargetSignatures: target,
	}, nil
}

func (p *RedisProjector) Milestones(ctx context.Context, id string) ([]model.Milestone, error) {
	raws, err := p.client.LRange(ctx, milestonesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read milestones %s: %w", id, err)
	}
	out := make([]model.Milestone, 0, len(raws))
	for _, raw := range raws {
		var m model.Milestone
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode milestone of %s: %w", id, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Close closes the Redis connection
func (p *RedisProjector) Close() error {
	return p.client.Close()
}

// Ping checks if Redis is reachable
func (p *RedisProjector) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
