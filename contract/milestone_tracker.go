package contract

import (
	"encoding/json"
	"fmt"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

var milestonePercents = [4]int{25, 50, 75, 100}

// milestoneThresholds returns target/4, target/2, 3*target/4 and target, using integer
// division. For small targets several thresholds coincide.
func milestoneThresholds(target int) [4]int {
	return [4]int{target / 4, target / 2, 3 * target / 4, target}
}

// crossedThreshold finds the first threshold, in ascending order, passed by moving the count
// from prev to cur. Zero thresholds never fire. Signing moves the count by exactly one, so at
// most one distinct threshold value can be crossed per call.
func crossedThreshold(target, prev, cur int) (threshold, percent int, ok bool) {
	for i, th := range milestoneThresholds(target) {
		if th <= 0 {
			continue
		}
		if cur >= th && prev < th {
			return th, milestonePercents[i], true
		}
	}
	return 0, 0, false
}

func (s *PetitionSmartContract) createMilestoneCompositeKey(ctx contractapi.TransactionContextInterface, petitionID string, threshold int) (string, error) {
	return ctx.GetStub().CreateCompositeKey(milestoneObjectType, []string{petitionID, logSeqKey(threshold)})
}

// recordMilestone appends a milestone for a newly crossed threshold. It returns nil when the
// count crossed nothing or the threshold value was already recorded for the petition.
func (s *PetitionSmartContract) recordMilestone(ctx contractapi.TransactionContextInterface, p *model.Petition, prevCount int, now time.Time) (*model.Milestone, error) {
	threshold, percent, ok := crossedThreshold(p.TargetSignatures, prevCount, p.SignatureCount)
	if !ok {
		return nil, nil
	}
	key, err := s.createMilestoneCompositeKey(ctx, p.ID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone key: %w", err)
	}
	existing, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read milestone %d of '%s': %w", threshold, p.ID, err)
	}
	if existing != nil {
		logger.Debugf("Milestone %d of petition '%s' already recorded; not firing again", threshold, p.ID)
		return nil, nil
	}
	m := &model.Milestone{
		ObjectType:     milestoneObjectType,
		PetitionID:     p.ID,
		Threshold:      threshold,
		Percent:        percent,
		SignatureCount: p.SignatureCount,
		ReachedAt:      now,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal milestone: %w", err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return nil, fmt.Errorf("failed to save milestone %d of '%s': %w", threshold, p.ID, err)
	}
	logger.Infof("Petition '%s' reached milestone %d (%d%%) with %d signatures", p.ID, threshold, percent, p.SignatureCount)
	return m, nil
}

func (s *PetitionSmartContract) listMilestones(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.Milestone, error) {
	it, err := ctx.GetStub().GetStateByPartialCompositeKey(milestoneObjectType, []string{petitionID})
	if err != nil {
		return nil, fmt.Errorf("failed to query milestones of '%s': %w", petitionID, err)
	}
	defer it.Close()

	milestones := []*model.Milestone{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate milestones of '%s': %w", petitionID, err)
		}
		var m model.Milestone
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			logger.Warningf("Skipping unreadable milestone '%s': %v", kv.Key, err)
			continue
		}
		milestones = append(milestones, &m)
	}
	return milestones, nil
}
