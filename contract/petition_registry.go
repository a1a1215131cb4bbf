package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// Index entries carry no payload; the key itself is the data.
var indexValue = []byte{0x00}

// logSeqKey pads sequence numbers so that key order equals sequence order.
func logSeqKey(seq int) string {
	return fmt.Sprintf("%010d", seq)
}

func (s *PetitionSmartContract) createPetitionCompositeKey(ctx contractapi.TransactionContextInterface, petitionID string) (string, error) {
	petitionID = strings.TrimSpace(petitionID)
	if petitionID == "" {
		return "", invalidInput("petitionID cannot be empty")
	}
	if len(petitionID) > maxStringInputLength {
		return "", invalidInput("petitionID exceeds max length %d", maxStringInputLength)
	}
	return ctx.GetStub().CreateCompositeKey(petitionObjectType, []string{petitionID})
}

// getPetitionByID loads a petition or fails with NOT_FOUND.
func (s *PetitionSmartContract) getPetitionByID(ctx contractapi.TransactionContextInterface, petitionID string) (*model.Petition, error) {
	key, err := s.createPetitionCompositeKey(ctx, petitionID)
	if err != nil {
		return nil, err
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read petition '%s': %w", petitionID, err)
	}
	if raw == nil {
		return nil, notFound("petition '%s' does not exist", petitionID)
	}
	var p model.Petition
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal petition '%s': %w", petitionID, err)
	}
	ensurePetitionSchemaCompliance(&p)
	return &p, nil
}

func (s *PetitionSmartContract) petitionExists(ctx contractapi.TransactionContextInterface, petitionID string) (bool, error) {
	key, err := s.createPetitionCompositeKey(ctx, petitionID)
	if err != nil {
		return false, err
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, fmt.Errorf("failed to read petition '%s': %w", petitionID, err)
	}
	return raw != nil, nil
}

func (s *PetitionSmartContract) putIndex(ctx contractapi.TransactionContextInterface, indexType string, attrs ...string) error {
	key, err := ctx.GetStub().CreateCompositeKey(indexType, attrs)
	if err != nil {
		return fmt.Errorf("failed to create %s key: %w", indexType, err)
	}
	if err := ctx.GetStub().PutState(key, indexValue); err != nil {
		return fmt.Errorf("failed to write %s entry: %w", indexType, err)
	}
	return nil
}

func (s *PetitionSmartContract) delIndex(ctx contractapi.TransactionContextInterface, indexType string, attrs ...string) error {
	key, err := ctx.GetStub().CreateCompositeKey(indexType, attrs)
	if err != nil {
		return fmt.Errorf("failed to create %s key: %w", indexType, err)
	}
	if err := ctx.GetStub().DelState(key); err != nil {
		return fmt.Errorf("failed to delete %s entry: %w", indexType, err)
	}
	return nil
}

func (s *PetitionSmartContract) writePetitionRecord(ctx contractapi.TransactionContextInterface, p *model.Petition) error {
	ensurePetitionSchemaCompliance(p)
	key, err := s.createPetitionCompositeKey(ctx, p.ID)
	if err != nil {
		return err
	}
	// The alias is a read-time decoration and is not persisted.
	stored := *p
	stored.CreatorAlias = ""
	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal petition '%s': %w", p.ID, err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to save petition '%s': %w", p.ID, err)
	}
	return nil
}

// insertPetition stores a new petition with its secondary index entries.
func (s *PetitionSmartContract) insertPetition(ctx contractapi.TransactionContextInterface, p *model.Petition) error {
	exists, err := s.petitionExists(ctx, p.ID)
	if err != nil {
		return err
	}
	if exists {
		return alreadyExists("petition '%s' already exists", p.ID)
	}
	if err := s.writePetitionRecord(ctx, p); err != nil {
		return err
	}
	if err := s.putIndex(ctx, byCreatorIndexType, p.CreatorID, p.ID); err != nil {
		return err
	}
	if err := s.putIndex(ctx, byCategoryIndexType, string(p.Category), p.ID); err != nil {
		return err
	}
	return s.putIndex(ctx, byStateIndexType, string(p.State), p.ID)
}

// savePetition rewrites an existing petition. prev is the record as loaded at the start of the
// transaction; index entries whose attribute changed are moved.
func (s *PetitionSmartContract) savePetition(ctx contractapi.TransactionContextInterface, p *model.Petition, prev model.Petition) error {
	if err := s.writePetitionRecord(ctx, p); err != nil {
		return err
	}
	if prev.State != p.State {
		if err := s.delIndex(ctx, byStateIndexType, string(prev.State), p.ID); err != nil {
			return err
		}
		if err := s.putIndex(ctx, byStateIndexType, string(p.State), p.ID); err != nil {
			return err
		}
	}
	if prev.Category != p.Category {
		if err := s.delIndex(ctx, byCategoryIndexType, string(prev.Category), p.ID); err != nil {
			return err
		}
		if err := s.putIndex(ctx, byCategoryIndexType, string(p.Category), p.ID); err != nil {
			return err
		}
	}
	return nil
}

// purgePetition removes a petition and every record keyed under its id.
func (s *PetitionSmartContract) purgePetition(ctx contractapi.TransactionContextInterface, p *model.Petition) error {
	stub := ctx.GetStub()
	var doomed []string
	for _, objectType := range []string{signatureObjectType, signatureLogObjectType, withdrawnObjectType, milestoneObjectType, updateLogObjectType} {
		keys, err := s.keysUnder(ctx, objectType, p.ID)
		if err != nil {
			return err
		}
		doomed = append(doomed, keys...)
	}
	for _, key := range doomed {
		if err := stub.DelState(key); err != nil {
			return fmt.Errorf("failed to delete '%s' of petition '%s': %w", key, p.ID, err)
		}
	}
	if err := s.delIndex(ctx, byCreatorIndexType, p.CreatorID, p.ID); err != nil {
		return err
	}
	if err := s.delIndex(ctx, byCategoryIndexType, string(p.Category), p.ID); err != nil {
		return err
	}
	if err := s.delIndex(ctx, byStateIndexType, string(p.State), p.ID); err != nil {
		return err
	}
	key, err := s.createPetitionCompositeKey(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := stub.DelState(key); err != nil {
		return fmt.Errorf("failed to delete petition '%s': %w", p.ID, err)
	}
	logger.Infof("Purged petition '%s' and %d dependent records", p.ID, len(doomed))
	return nil
}

// keysUnder lists the world-state keys of objectType whose attributes start with prefix.
func (s *PetitionSmartContract) keysUnder(ctx contractapi.TransactionContextInterface, objectType string, prefix ...string) ([]string, error) {
	it, err := ctx.GetStub().GetStateByPartialCompositeKey(objectType, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", objectType, err)
	}
	defer it.Close()

	keys := []string{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s records: %w", objectType, err)
		}
		keys = append(keys, kv.Key)
	}
	return keys, nil
}

// petitionIDsByIndex returns petition ids from a secondary index, in key order.
func (s *PetitionSmartContract) petitionIDsByIndex(ctx contractapi.TransactionContextInterface, indexType, attr string) ([]string, error) {
	keys, err := s.keysUnder(ctx, indexType, attr)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		_, attrs, err := ctx.GetStub().SplitCompositeKey(key)
		if err != nil || len(attrs) != 2 {
			logger.Warningf("Skipping malformed %s key '%s': %v", indexType, key, err)
			continue
		}
		ids = append(ids, attrs[1])
	}
	return ids, nil
}

func (s *PetitionSmartContract) loadPetitions(ctx contractapi.TransactionContextInterface, ids []string) ([]*model.Petition, error) {
	im := NewIdentityManager(ctx)
	petitions := make([]*model.Petition, 0, len(ids))
	for _, id := range ids {
		p, err := s.getPetitionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		enrichPetitionAlias(im, p)
		petitions = append(petitions, p)
	}
	return petitions, nil
}

// appendUpdateLog records one field edit and advances the petition's history sequence.
// The caller persists the petition afterwards.
func (s *PetitionSmartContract) appendUpdateLog(ctx contractapi.TransactionContextInterface, p *model.Petition, field, oldValue, newValue, actorID string, now time.Time) error {
	p.HistorySeq++
	entry := model.UpdateLogEntry{
		ObjectType: updateLogObjectType,
		PetitionID: p.ID,
		Seq:        p.HistorySeq,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		UpdatedBy:  actorID,
		UpdatedAt:  now,
	}
	key, err := ctx.GetStub().CreateCompositeKey(updateLogObjectType, []string{p.ID, logSeqKey(entry.Seq)})
	if err != nil {
		return fmt.Errorf("failed to create update log key: %w", err)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal update log entry: %w", err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to append update log for petition '%s': %w", p.ID, err)
	}
	return nil
}

func (s *PetitionSmartContract) listUpdateLog(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.UpdateLogEntry, error) {
	it, err := ctx.GetStub().GetStateByPartialCompositeKey(updateLogObjectType, []string{petitionID})
	if err != nil {
		return nil, fmt.Errorf("failed to query update log of '%s': %w", petitionID, err)
	}
	defer it.Close()

	entries := []*model.UpdateLogEntry{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate update log of '%s': %w", petitionID, err)
		}
		var e model.UpdateLogEntry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			logger.Warningf("Skipping unreadable update log entry '%s': %v", kv.Key, err)
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}
