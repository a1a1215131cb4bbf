package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Query Functions ---

// GetPetition returns one petition with its creator alias filled in.
func (s *PetitionSmartContract) GetPetition(ctx contractapi.TransactionContextInterface, petitionID string) (*model.Petition, error) {
	logger.Debugf("GetPetition: '%s'", petitionID)
	p, err := s.getPetitionByID(ctx, petitionID)
	if err != nil {
		return nil, err
	}
	enrichPetitionAlias(NewIdentityManager(ctx), p)
	return p, nil
}

// GetSignatures lists the active signatures of a petition in key order.
func (s *PetitionSmartContract) GetSignatures(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.Signature, error) {
	logger.Debugf("GetSignatures: '%s'", petitionID)
	if _, err := s.getPetitionByID(ctx, petitionID); err != nil {
		return nil, err
	}
	signatures, err := s.listActiveSignatures(ctx, petitionID)
	if err != nil {
		return nil, err
	}
	im := NewIdentityManager(ctx)
	for _, sig := range signatures {
		sig.SignerAlias = im.aliasFor(sig.SignerID)
	}
	return signatures, nil
}

// GetSignatureHistory returns every SIGNED and WITHDRAWN entry in sequence order.
func (s *PetitionSmartContract) GetSignatureHistory(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.SignatureLogEntry, error) {
	logger.Debugf("GetSignatureHistory: '%s'", petitionID)
	if _, err := s.getPetitionByID(ctx, petitionID); err != nil {
		return nil, err
	}
	return s.listSignatureLog(ctx, petitionID)
}

// HasSigned reports whether the identity (or alias) holds an active signature. An empty
// identity means the caller.
func (s *PetitionSmartContract) HasSigned(ctx contractapi.TransactionContextInterface, petitionID, identityOrAlias string) (bool, error) {
	if _, err := s.getPetitionByID(ctx, petitionID); err != nil {
		return false, err
	}
	identity, err := s.resolveIdentityOrCaller(ctx, identityOrAlias)
	if err != nil {
		return false, err
	}
	sig, err := s.getActiveSignature(ctx, petitionID, identity)
	if err != nil {
		return false, err
	}
	return sig != nil, nil
}

// GetMilestones returns the recorded milestones in ascending threshold order.
func (s *PetitionSmartContract) GetMilestones(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.Milestone, error) {
	logger.Debugf("GetMilestones: '%s'", petitionID)
	if _, err := s.getPetitionByID(ctx, petitionID); err != nil {
		return nil, err
	}
	return s.listMilestones(ctx, petitionID)
}

func (s *PetitionSmartContract) GetUpdateLog(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.UpdateLogEntry, error) {
	logger.Debugf("GetUpdateLog: '%s'", petitionID)
	if _, err := s.getPetitionByID(ctx, petitionID); err != nil {
		return nil, err
	}
	return s.listUpdateLog(ctx, petitionID)
}

// GetUserStats returns the counters of an identity or alias; an empty argument means the caller.
// Identities with no activity get a zero record.
func (s *PetitionSmartContract) GetUserStats(ctx contractapi.TransactionContextInterface, identityOrAlias string) (*model.UserStats, error) {
	identity, err := s.resolveIdentityOrCaller(ctx, identityOrAlias)
	if err != nil {
		return nil, err
	}
	st, err := s.getUserStatsRecord(ctx, identity)
	if err != nil {
		return nil, err
	}
	st.Alias = NewIdentityManager(ctx).aliasFor(identity)
	return st, nil
}

func (s *PetitionSmartContract) resolveIdentityOrCaller(ctx contractapi.TransactionContextInterface, identityOrAlias string) (string, error) {
	if strings.TrimSpace(identityOrAlias) == "" {
		return NewIdentityManager(ctx).GetCurrentIdentityFullID()
	}
	return NewIdentityManager(ctx).ResolveIdentity(identityOrAlias)
}

func (s *PetitionSmartContract) ListPetitionsByCategory(ctx contractapi.TransactionContextInterface, category string) ([]*model.Petition, error) {
	c, err := validateCategory(category)
	if err != nil {
		return nil, err
	}
	ids, err := s.petitionIDsByIndex(ctx, byCategoryIndexType, string(c))
	if err != nil {
		return nil, err
	}
	return s.loadPetitions(ctx, ids)
}

func (s *PetitionSmartContract) ListPetitionsByState(ctx contractapi.TransactionContextInterface, state string) ([]*model.Petition, error) {
	st, err := validateState(state)
	if err != nil {
		return nil, err
	}
	ids, err := s.petitionIDsByIndex(ctx, byStateIndexType, string(st))
	if err != nil {
		return nil, err
	}
	return s.loadPetitions(ctx, ids)
}

// ListPetitionsByCreator accepts a full identity or a registered alias.
func (s *PetitionSmartContract) ListPetitionsByCreator(ctx contractapi.TransactionContextInterface, identityOrAlias string) ([]*model.Petition, error) {
	creator, err := s.resolveIdentityOrCaller(ctx, identityOrAlias)
	if err != nil {
		return nil, err
	}
	ids, err := s.petitionIDsByIndex(ctx, byCreatorIndexType, creator)
	if err != nil {
		return nil, err
	}
	return s.loadPetitions(ctx, ids)
}

// PaginatePetitions walks all petitions in id order. A negative offset reads from the start and
// an offset past the end yields an empty page; limit defaults to 10 and is capped at 100.
func (s *PetitionSmartContract) PaginatePetitions(ctx contractapi.TransactionContextInterface, offset, limit int) (*model.PaginatedPetitionResponse, error) {
	offset, limit = normalizePagination(offset, limit)
	logger.Debugf("PaginatePetitions: offset %d, limit %d", offset, limit)

	it, err := ctx.GetStub().GetStateByPartialCompositeKey(petitionObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("PaginatePetitions: failed to query petitions: %w", err)
	}
	defer it.Close()

	im := NewIdentityManager(ctx)
	page := []*model.Petition{}
	total := 0
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("PaginatePetitions: failed to iterate petitions: %w", err)
		}
		index := total
		total++
		if index < offset || len(page) >= limit {
			continue
		}
		var p model.Petition
		if err := json.Unmarshal(kv.Value, &p); err != nil {
			return nil, fmt.Errorf("PaginatePetitions: failed to unmarshal '%s': %w", kv.Key, err)
		}
		ensurePetitionSchemaCompliance(&p)
		enrichPetitionAlias(im, &p)
		page = append(page, &p)
	}
	return &model.PaginatedPetitionResponse{
		Petitions:    page,
		Offset:       offset,
		Limit:        limit,
		Total:        total,
		FetchedCount: len(page),
	}, nil
}

// ComputeStats derives progress live from the stored record and the transaction time.
func (s *PetitionSmartContract) ComputeStats(ctx contractapi.TransactionContextInterface, petitionID string) (*model.PetitionStats, error) {
	p, err := s.getPetitionByID(ctx, petitionID)
	if err != nil {
		return nil, err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("ComputeStats: %w", err)
	}
	progress := 0
	if p.TargetSignatures > 0 {
		progress = min(100, p.SignatureCount*100/p.TargetSignatures)
	}
	hasStarted := !now.Before(p.StartDate)
	hasEnded := now.After(p.EndDate)
	return &model.PetitionStats{
		PetitionID:      p.ID,
		State:           p.State,
		Count:           p.SignatureCount,
		Target:          p.TargetSignatures,
		ProgressPercent: progress,
		HasStarted:      hasStarted,
		HasEnded:        hasEnded,
		IsSignable:      p.State == model.StatePublished && hasStarted && !hasEnded,
	}, nil
}

// VerifyPetitionIntegrity recounts the active signer keys and compares them with the stored count.
func (s *PetitionSmartContract) VerifyPetitionIntegrity(ctx contractapi.TransactionContextInterface, petitionID string) (*model.IntegrityReport, error) {
	p, err := s.getPetitionByID(ctx, petitionID)
	if err != nil {
		return nil, err
	}
	active, err := s.countActiveSigners(ctx, petitionID)
	if err != nil {
		return nil, err
	}
	report := &model.IntegrityReport{
		PetitionID:    p.ID,
		StoredCount:   p.SignatureCount,
		ActiveSigners: active,
		Consistent:    p.SignatureCount == active,
	}
	if !report.Consistent {
		logger.Errorf("Petition '%s' integrity check failed: stored %d, active %d", p.ID, p.SignatureCount, active)
	}
	return report, nil
}
