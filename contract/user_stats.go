package contract

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

type statsDelta struct {
	created    int
	signed     int
	reputation int
}

// statsBatch accumulates per-identity changes for one transaction. Fabric does not expose a
// transaction's own pending writes to GetState, so each UserStats key must be read and written
// exactly once even when the same identity is credited twice (self-sign that completes).
type statsBatch map[string]*statsDelta

func (b statsBatch) add(identity string, created, signed, reputation int) {
	d, ok := b[identity]
	if !ok {
		d = &statsDelta{}
		b[identity] = d
	}
	d.created += created
	d.signed += signed
	d.reputation += reputation
}

// reputationDeltas returns the non-zero reputation changes for the event payload.
func (b statsBatch) reputationDeltas() map[string]int {
	out := map[string]int{}
	for identity, d := range b {
		if d.reputation != 0 {
			out[identity] = d.reputation
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *PetitionSmartContract) createUserStatsCompositeKey(ctx contractapi.TransactionContextInterface, identity string) (string, error) {
	return ctx.GetStub().CreateCompositeKey(userStatsObjectType, []string{identity})
}

// getUserStatsRecord returns the stored counters, or a zero record for an identity that has
// never created or signed anything.
func (s *PetitionSmartContract) getUserStatsRecord(ctx contractapi.TransactionContextInterface, identity string) (*model.UserStats, error) {
	key, err := s.createUserStatsCompositeKey(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create user stats key: %w", err)
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read user stats of '%s': %w", identity, err)
	}
	if raw == nil {
		return &model.UserStats{ObjectType: userStatsObjectType, Identity: identity}, nil
	}
	var st model.UserStats
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user stats of '%s': %w", identity, err)
	}
	return &st, nil
}

// applyStats writes the batch. Signed counts are floored at zero; reputation only ever grows
// because no operation produces a negative reputation delta.
func (s *PetitionSmartContract) applyStats(ctx contractapi.TransactionContextInterface, batch statsBatch, now time.Time) error {
	identities := make([]string, 0, len(batch))
	for identity := range batch {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	for _, identity := range identities {
		d := batch[identity]
		st, err := s.getUserStatsRecord(ctx, identity)
		if err != nil {
			return err
		}
		st.PetitionsCreated = floorZero(st.PetitionsCreated + d.created)
		st.PetitionsSigned = floorZero(st.PetitionsSigned + d.signed)
		st.ReputationScore = floorZero(st.ReputationScore + d.reputation)
		st.LastUpdatedAt = now
		st.Alias = ""

		raw, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to marshal user stats of '%s': %w", identity, err)
		}
		key, err := s.createUserStatsCompositeKey(ctx, identity)
		if err != nil {
			return fmt.Errorf("failed to create user stats key: %w", err)
		}
		if err := ctx.GetStub().PutState(key, raw); err != nil {
			return fmt.Errorf("failed to save user stats of '%s': %w", identity, err)
		}
	}
	return nil
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
