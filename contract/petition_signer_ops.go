package contract

import (
	"fmt"
	"time"
	"unicode/utf8"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Signer Operations ---

// SignPetition records the caller's signature. Reaching the target completes the petition.
func (s *PetitionSmartContract) SignPetition(ctx contractapi.TransactionContextInterface, petitionID, message string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("SignPetition: failed to get actor info: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("SignPetition: %w", err)
	}

	p, err := s.getPetitionByID(ctx, petitionID)
	if err != nil {
		return err
	}
	if _, err := nextState(p.State, opSign); err != nil {
		return err
	}
	if now.Before(p.StartDate) {
		return temporalViolation("petition '%s' opens for signatures at %s", petitionID, p.StartDate.Format(time.RFC3339))
	}
	if now.After(p.EndDate) {
		return temporalViolation("petition '%s' closed for signatures at %s", petitionID, p.EndDate.Format(time.RFC3339))
	}
	existing, err := s.getActiveSignature(ctx, petitionID, actor.fullID)
	if err != nil {
		return fmt.Errorf("SignPetition: %w", err)
	}
	if existing != nil {
		return duplicate("caller has already signed petition '%s'", petitionID)
	}
	if n := utf8.RuneCountInString(message); n > s.Rules.MaxMessageLength {
		return invalidInput("message has %d characters, exceeding maximum of %d", n, s.Rules.MaxMessageLength)
	}
	if !s.Rules.AllowSelfSign && actor.fullID == p.CreatorID {
		return unauthorized("the creator of petition '%s' cannot sign it", petitionID)
	}
	if !s.Rules.AllowResign {
		withdrawn, err := s.hasWithdrawn(ctx, petitionID, actor.fullID)
		if err != nil {
			return fmt.Errorf("SignPetition: %w", err)
		}
		if withdrawn {
			return duplicate("caller withdrew from petition '%s' and cannot sign it again", petitionID)
		}
	}

	// Every guard has passed; writes start here.
	prev := *p
	sig := &model.Signature{
		ObjectType: signatureObjectType,
		PetitionID: petitionID,
		SignerID:   actor.fullID,
		SignerMSP:  actor.mspID,
		SignedAt:   now,
		Message:    message,
	}
	if err := s.putSignature(ctx, sig); err != nil {
		return fmt.Errorf("SignPetition: %w", err)
	}
	if err := s.appendSignatureLog(ctx, p, model.ActionSigned, actor.fullID, message, now); err != nil {
		return fmt.Errorf("SignPetition: %w", err)
	}
	p.SignatureCount++
	p.LastUpdatedAt = now

	milestone, err := s.recordMilestone(ctx, p, prev.SignatureCount, now)
	if err != nil {
		return fmt.Errorf("SignPetition: %w", err)
	}

	batch := statsBatch{}
	batch.add(actor.fullID, 0, 1, reputationForSign)

	eventType := model.EventPetitionSigned
	if milestone != nil {
		eventType = model.EventMilestoneReached
	}
	if p.SignatureCount >= p.TargetSignatures {
		completed, err := nextState(p.State, opComplete)
		if err != nil {
			return err
		}
		p.State = completed
		p.CompletedAt = now
		batch.add(p.CreatorID, 0, 0, reputationForCompletion)
		eventType = model.EventPetitionCompleted
	}

	if err := s.savePetition(ctx, p, prev); err != nil {
		return fmt.Errorf("SignPetition: %w", err)
	}
	if err := s.applyStats(ctx, batch, now); err != nil {
		return fmt.Errorf("SignPetition: %w", err)
	}
	if err := s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:             eventType,
		PreviousState:    prev.State,
		Milestone:        milestone,
		ReputationDeltas: batch.reputationDeltas(),
	}, p, actor, now); err != nil {
		return err
	}

	logger.Infof("Petition '%s' signed by '%s' (%d/%d)", petitionID, actor.fullID, p.SignatureCount, p.TargetSignatures)
	if p.State == model.StateCompleted {
		logger.Infof("Petition '%s' completed", petitionID)
	}
	return nil
}

// WithdrawSignature removes the caller's active signature within the withdrawal window.
// The signature history keeps the original SIGNED entry.
func (s *PetitionSmartContract) WithdrawSignature(ctx contractapi.TransactionContextInterface, petitionID string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("WithdrawSignature: failed to get actor info: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("WithdrawSignature: %w", err)
	}

	p, err := s.getPetitionByID(ctx, petitionID)
	if err != nil {
		return err
	}
	if _, err := nextState(p.State, opWithdraw); err != nil {
		return err
	}
	sig, err := s.getActiveSignature(ctx, petitionID, actor.fullID)
	if err != nil {
		return fmt.Errorf("WithdrawSignature: %w", err)
	}
	if sig == nil {
		return notFound("caller has no active signature on petition '%s'", petitionID)
	}
	if elapsed := now.Sub(sig.SignedAt); elapsed > s.Rules.WithdrawWindow {
		return temporalViolation("signature on petition '%s' is %s old; withdrawal window is %s", petitionID, elapsed, s.Rules.WithdrawWindow)
	}

	prev := *p
	if err := s.removeSignature(ctx, petitionID, actor.fullID, !s.Rules.AllowResign, now); err != nil {
		return fmt.Errorf("WithdrawSignature: %w", err)
	}
	if err := s.appendSignatureLog(ctx, p, model.ActionWithdrawn, actor.fullID, "", now); err != nil {
		return fmt.Errorf("WithdrawSignature: %w", err)
	}
	p.SignatureCount = floorZero(p.SignatureCount - 1)
	p.LastUpdatedAt = now
	if err := s.savePetition(ctx, p, prev); err != nil {
		return fmt.Errorf("WithdrawSignature: %w", err)
	}

	batch := statsBatch{}
	batch.add(actor.fullID, 0, -1, 0)
	if err := s.applyStats(ctx, batch, now); err != nil {
		return fmt.Errorf("WithdrawSignature: %w", err)
	}
	if err := s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:          model.EventSignatureWithdrawn,
		PreviousState: prev.State,
	}, p, actor, now); err != nil {
		return err
	}
	logger.Infof("Signature of '%s' withdrawn from petition '%s' (%d/%d)", actor.fullID, petitionID, p.SignatureCount, p.TargetSignatures)
	return nil
}
