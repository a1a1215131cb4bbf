package contract

import (
	"encoding/json"
	"fmt"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// The active signature key Signature~pid~signer is the uniqueness guard: at most one per pair.

func (s *PetitionSmartContract) getActiveSignature(ctx contractapi.TransactionContextInterface, petitionID, signerID string) (*model.Signature, error) {
	key, err := ctx.GetStub().CreateCompositeKey(signatureObjectType, []string{petitionID, signerID})
	if err != nil {
		return nil, fmt.Errorf("failed to create signature key: %w", err)
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature of '%s' on '%s': %w", signerID, petitionID, err)
	}
	if raw == nil {
		return nil, nil
	}
	var sig model.Signature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signature of '%s' on '%s': %w", signerID, petitionID, err)
	}
	return &sig, nil
}

// hasWithdrawn reports whether signerID ever withdrew from the petition.
func (s *PetitionSmartContract) hasWithdrawn(ctx contractapi.TransactionContextInterface, petitionID, signerID string) (bool, error) {
	key, err := ctx.GetStub().CreateCompositeKey(withdrawnObjectType, []string{petitionID, signerID})
	if err != nil {
		return false, fmt.Errorf("failed to create withdrawal marker key: %w", err)
	}
	raw, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, fmt.Errorf("failed to read withdrawal marker: %w", err)
	}
	return raw != nil, nil
}

func (s *PetitionSmartContract) putSignature(ctx contractapi.TransactionContextInterface, sig *model.Signature) error {
	key, err := ctx.GetStub().CreateCompositeKey(signatureObjectType, []string{sig.PetitionID, sig.SignerID})
	if err != nil {
		return fmt.Errorf("failed to create signature key: %w", err)
	}
	stored := *sig
	stored.SignerAlias = ""
	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal signature: %w", err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to save signature of '%s' on '%s': %w", sig.SignerID, sig.PetitionID, err)
	}
	return nil
}

// removeSignature deletes the active key and, when markWithdrawn is set, leaves a marker that
// blocks a later re-sign.
func (s *PetitionSmartContract) removeSignature(ctx contractapi.TransactionContextInterface, petitionID, signerID string, markWithdrawn bool, now time.Time) error {
	key, err := ctx.GetStub().CreateCompositeKey(signatureObjectType, []string{petitionID, signerID})
	if err != nil {
		return fmt.Errorf("failed to create signature key: %w", err)
	}
	if err := ctx.GetStub().DelState(key); err != nil {
		return fmt.Errorf("failed to delete signature of '%s' on '%s': %w", signerID, petitionID, err)
	}
	if !markWithdrawn {
		return nil
	}
	markerKey, err := ctx.GetStub().CreateCompositeKey(withdrawnObjectType, []string{petitionID, signerID})
	if err != nil {
		return fmt.Errorf("failed to create withdrawal marker key: %w", err)
	}
	if err := ctx.GetStub().PutState(markerKey, []byte(now.Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("failed to write withdrawal marker: %w", err)
	}
	return nil
}

// appendSignatureLog adds a SIGNED or WITHDRAWN entry to the petition's history. Entries are
// never removed except by DeleteDraft, which cannot apply to a petition that has history.
func (s *PetitionSmartContract) appendSignatureLog(ctx contractapi.TransactionContextInterface, p *model.Petition, action model.SignatureAction, signerID, message string, now time.Time) error {
	p.HistorySeq++
	entry := model.SignatureLogEntry{
		ObjectType: signatureLogObjectType,
		PetitionID: p.ID,
		Seq:        p.HistorySeq,
		Action:     action,
		SignerID:   signerID,
		Timestamp:  now,
		Message:    message,
	}
	key, err := ctx.GetStub().CreateCompositeKey(signatureLogObjectType, []string{p.ID, logSeqKey(entry.Seq)})
	if err != nil {
		return fmt.Errorf("failed to create signature log key: %w", err)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal signature log entry: %w", err)
	}
	if err := ctx.GetStub().PutState(key, raw); err != nil {
		return fmt.Errorf("failed to append signature log for petition '%s': %w", p.ID, err)
	}
	return nil
}

// listActiveSignatures enumerates current signers in key order, which is not signing order.
func (s *PetitionSmartContract) listActiveSignatures(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.Signature, error) {
	it, err := ctx.GetStub().GetStateByPartialCompositeKey(signatureObjectType, []string{petitionID})
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures of '%s': %w", petitionID, err)
	}
	defer it.Close()

	signatures := []*model.Signature{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate signatures of '%s': %w", petitionID, err)
		}
		var sig model.Signature
		if err := json.Unmarshal(kv.Value, &sig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signature '%s': %w", kv.Key, err)
		}
		signatures = append(signatures, &sig)
	}
	return signatures, nil
}

func (s *PetitionSmartContract) countActiveSigners(ctx contractapi.TransactionContextInterface, petitionID string) (int, error) {
	keys, err := s.keysUnder(ctx, signatureObjectType, petitionID)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *PetitionSmartContract) listSignatureLog(ctx contractapi.TransactionContextInterface, petitionID string) ([]*model.SignatureLogEntry, error) {
	it, err := ctx.GetStub().GetStateByPartialCompositeKey(signatureLogObjectType, []string{petitionID})
	if err != nil {
		return nil, fmt.Errorf("failed to query signature history of '%s': %w", petitionID, err)
	}
	defer it.Close()

	entries := []*model.SignatureLogEntry{}
	for it.HasNext() {
		kv, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate signature history of '%s': %w", petitionID, err)
		}
		var e model.SignatureLogEntry
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			logger.Warningf("Skipping unreadable signature log entry '%s': %v", kv.Key, err)
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}
