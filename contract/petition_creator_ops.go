package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Creator Operations ---

// Fields the creator may edit, per state. Dates and target are frozen once published.
var (
	draftEditableFields = map[string]bool{
		"title": true, "description": true, "imageRef": true, "metadataRef": true, "category": true,
		"tags": true, "startDate": true, "endDate": true, "targetSignatures": true,
	}
	publishedEditableFields = map[string]bool{
		"imageRef": true, "metadataRef": true,
	}
)

// CreatePetition stores a new DRAFT petition owned by the caller and returns it.
func (s *PetitionSmartContract) CreatePetition(ctx contractapi.TransactionContextInterface,
	title, description, imageRef, metadataRef, category, tagsJSON, startDate, endDate string,
	targetSignatures int) (*model.Petition, error) {
	return s.createPetition(ctx, opCreate, title, description, imageRef, metadataRef, category, tagsJSON, startDate, endDate, targetSignatures)
}

// CreatePublishedPetition creates a petition that is open for signatures immediately.
func (s *PetitionSmartContract) CreatePublishedPetition(ctx contractapi.TransactionContextInterface,
	title, description, imageRef, metadataRef, category, tagsJSON, startDate, endDate string,
	targetSignatures int) (*model.Petition, error) {
	return s.createPetition(ctx, opCreatePublished, title, description, imageRef, metadataRef, category, tagsJSON, startDate, endDate, targetSignatures)
}

func (s *PetitionSmartContract) createPetition(ctx contractapi.TransactionContextInterface, op lifecycleOp,
	title, description, imageRef, metadataRef, category, tagsJSON, startDate, endDate string,
	targetSignatures int) (*model.Petition, error) {

	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreatePetition: failed to get actor info: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("CreatePetition: %w", err)
	}

	draft, err := validatePetitionArgs(title, description, imageRef, metadataRef, category, tagsJSON, startDate, endDate, targetSignatures)
	if err != nil {
		return nil, err
	}
	state, err := nextState(stateAbsent, op)
	if err != nil {
		return nil, err
	}
	if state == model.StatePublished && !draft.EndDate.After(now) {
		return nil, temporalViolation("endDate %s is not in the future", draft.EndDate.Format(time.RFC3339))
	}

	petitionID, err := s.IDs.NextPetitionID(ctx.GetStub())
	if err != nil {
		return nil, fmt.Errorf("CreatePetition: failed to allocate petition id: %w", err)
	}

	p := &model.Petition{
		ObjectType:       petitionObjectType,
		ID:               petitionID,
		CreatorID:        actor.fullID,
		CreatorMSP:       actor.mspID,
		Title:            draft.Title,
		Description:      draft.Description,
		ImageRef:         draft.ImageRef,
		MetadataRef:      draft.MetadataRef,
		Category:         draft.Category,
		Tags:             draft.Tags,
		State:            state,
		CreatedAt:        now,
		StartDate:        draft.StartDate,
		EndDate:          draft.EndDate,
		TargetSignatures: draft.TargetSignatures,
		LastUpdatedAt:    now,
	}
	if state == model.StatePublished {
		p.PublishedAt = now
	}

	// insertPetition performs the last guard (ALREADY_EXISTS) before its first write.
	if err := s.insertPetition(ctx, p); err != nil {
		return nil, err
	}
	if err := s.IDs.Consume(ctx.GetStub(), petitionID); err != nil {
		return nil, fmt.Errorf("CreatePetition: %w", err)
	}

	batch := statsBatch{}
	batch.add(actor.fullID, 1, 0, reputationForCreate)
	if err := s.applyStats(ctx, batch, now); err != nil {
		return nil, fmt.Errorf("CreatePetition: %w", err)
	}

	if err := s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:             model.EventPetitionCreated,
		ReputationDeltas: batch.reputationDeltas(),
	}, p, actor, now); err != nil {
		return nil, err
	}

	p.CreatorAlias = actor.alias
	logger.Infof("Petition '%s' created in state %s by '%s' (alias: '%s')", p.ID, p.State, actor.fullID, actor.alias)
	return p, nil
}

// loadOwnedPetition loads a petition for a creator-only operation. Guards run in the order
// NOT_FOUND, UNAUTHORIZED, INVALID_STATE. It returns the petition and the state op leads to.
func (s *PetitionSmartContract) loadOwnedPetition(ctx contractapi.TransactionContextInterface, petitionID string, op lifecycleOp, actor *actorInfo) (*model.Petition, model.PetitionState, error) {
	p, err := s.getPetitionByID(ctx, petitionID)
	if err != nil {
		return nil, "", err
	}
	if p.CreatorID != actor.fullID {
		return nil, "", unauthorized("only the creator of petition '%s' may %s it", petitionID, op)
	}
	next, err := nextState(p.State, op)
	if err != nil {
		return nil, "", err
	}
	return p, next, nil
}

// PublishPetition opens a DRAFT petition for signatures.
func (s *PetitionSmartContract) PublishPetition(ctx contractapi.TransactionContextInterface, petitionID string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("PublishPetition: failed to get actor info: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("PublishPetition: %w", err)
	}
	p, next, err := s.loadOwnedPetition(ctx, petitionID, opPublish, actor)
	if err != nil {
		return err
	}
	if !p.EndDate.After(now) {
		return temporalViolation("petition '%s' ended at %s and cannot be published", petitionID, p.EndDate.Format(time.RFC3339))
	}

	prev := *p
	p.State = next
	p.PublishedAt = now
	p.LastUpdatedAt = now
	if err := s.savePetition(ctx, p, prev); err != nil {
		return fmt.Errorf("PublishPetition: %w", err)
	}
	if err := s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:          model.EventPetitionPublished,
		PreviousState: prev.State,
	}, p, actor, now); err != nil {
		return err
	}
	logger.Infof("Petition '%s' published by '%s'", petitionID, actor.alias)
	return nil
}

// CancelPetition closes a PUBLISHED petition. Completed petitions cannot be cancelled.
func (s *PetitionSmartContract) CancelPetition(ctx contractapi.TransactionContextInterface, petitionID, reason string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("CancelPetition: failed to get actor info: %w", err)
	}
	if err := validateOptionalString(reason, "reason", maxDescriptionLength); err != nil {
		return err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("CancelPetition: %w", err)
	}
	p, next, err := s.loadOwnedPetition(ctx, petitionID, opCancel, actor)
	if err != nil {
		return err
	}

	prev := *p
	p.State = next
	p.CancelledAt = now
	p.LastUpdatedAt = now
	if err := s.savePetition(ctx, p, prev); err != nil {
		return fmt.Errorf("CancelPetition: %w", err)
	}
	event := &model.PetitionEvent{Type: model.EventPetitionCancelled, PreviousState: prev.State}
	if reason != "" {
		event.Details = map[string]string{"reason": reason}
	}
	if err := s.emitPetitionEvent(ctx, event, p, actor, now); err != nil {
		return err
	}
	logger.Infof("Petition '%s' cancelled by '%s' with %d signatures", petitionID, actor.alias, p.SignatureCount)
	return nil
}

// ExtendEndDate moves the end of a PUBLISHED petition later. The new date must be after both
// the current end date and the transaction time.
func (s *PetitionSmartContract) ExtendEndDate(ctx contractapi.TransactionContextInterface, petitionID, newEndDate string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("ExtendEndDate: failed to get actor info: %w", err)
	}
	newEnd, err := parseDateString(newEndDate, "newEndDate", true)
	if err != nil {
		return err
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("ExtendEndDate: %w", err)
	}
	p, _, err := s.loadOwnedPetition(ctx, petitionID, opExtendEndDate, actor)
	if err != nil {
		return err
	}
	if !newEnd.After(p.EndDate) {
		return invalidInput("new end date %s must be after the current end date %s", newEnd.Format(time.RFC3339), p.EndDate.Format(time.RFC3339))
	}
	if !newEnd.After(now) {
		return invalidInput("new end date %s must be in the future", newEnd.Format(time.RFC3339))
	}

	prev := *p
	if err := s.appendUpdateLog(ctx, p, "endDate", prev.EndDate.Format(time.RFC3339), newEnd.Format(time.RFC3339), actor.fullID, now); err != nil {
		return fmt.Errorf("ExtendEndDate: %w", err)
	}
	p.EndDate = newEnd
	p.LastUpdatedAt = now
	if err := s.savePetition(ctx, p, prev); err != nil {
		return fmt.Errorf("ExtendEndDate: %w", err)
	}
	if err := s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:    model.EventEndDateExtended,
		Details: map[string]string{"oldEndDate": prev.EndDate.Format(time.RFC3339), "newEndDate": newEnd.Format(time.RFC3339)},
	}, p, actor, now); err != nil {
		return err
	}
	logger.Infof("Petition '%s' end date extended to %s", petitionID, newEnd.Format(time.RFC3339))
	return nil
}

// UpdatePetitionField edits one field of the caller's petition and appends an update log entry.
// Tags are passed as a JSON array, dates as RFC3339 and the target as a decimal integer.
func (s *PetitionSmartContract) UpdatePetitionField(ctx contractapi.TransactionContextInterface, petitionID, field, value string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("UpdatePetitionField: failed to get actor info: %w", err)
	}
	field = strings.TrimSpace(field)
	if !draftEditableFields[field] {
		return invalidInput("field '%s' cannot be updated", field)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("UpdatePetitionField: %w", err)
	}
	p, _, err := s.loadOwnedPetition(ctx, petitionID, opUpdateField, actor)
	if err != nil {
		return err
	}
	if p.State == model.StatePublished && !publishedEditableFields[field] {
		return invalidState("field '%s' is frozen once petition '%s' is published", field, petitionID)
	}

	prev := *p
	oldValue, newValue, err := applyFieldUpdate(p, field, value)
	if err != nil {
		return err
	}
	if err := s.appendUpdateLog(ctx, p, field, oldValue, newValue, actor.fullID, now); err != nil {
		return fmt.Errorf("UpdatePetitionField: %w", err)
	}
	p.LastUpdatedAt = now
	if err := s.savePetition(ctx, p, prev); err != nil {
		return fmt.Errorf("UpdatePetitionField: %w", err)
	}
	if err := s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:    model.EventPetitionUpdated,
		Details: map[string]string{"field": field, "oldValue": oldValue, "newValue": newValue},
	}, p, actor, now); err != nil {
		return err
	}
	logger.Infof("Petition '%s' field '%s' updated by '%s'", petitionID, field, actor.alias)
	return nil
}

// applyFieldUpdate validates value and sets it on p. It returns the old and new values in
// their string form for the update log.
func applyFieldUpdate(p *model.Petition, field, value string) (string, string, error) {
	switch field {
	case "title":
		if err := validateRequiredString(value, "title", maxTitleLength); err != nil {
			return "", "", err
		}
		old := p.Title
		p.Title = strings.TrimSpace(value)
		return old, p.Title, nil
	case "description":
		if err := validateOptionalString(value, "description", maxDescriptionLength); err != nil {
			return "", "", err
		}
		old := p.Description
		p.Description = value
		return old, p.Description, nil
	case "imageRef":
		if err := validateOptionalString(value, "imageRef", maxRefLength); err != nil {
			return "", "", err
		}
		old := p.ImageRef
		p.ImageRef = strings.TrimSpace(value)
		return old, p.ImageRef, nil
	case "metadataRef":
		if err := validateRequiredString(value, "metadataRef", maxRefLength); err != nil {
			return "", "", err
		}
		old := p.MetadataRef
		p.MetadataRef = strings.TrimSpace(value)
		return old, p.MetadataRef, nil
	case "category":
		c, err := validateCategory(value)
		if err != nil {
			return "", "", err
		}
		old := string(p.Category)
		p.Category = c
		return old, string(c), nil
	case "tags":
		tags, err := parseTagsJSON(value)
		if err != nil {
			return "", "", err
		}
		oldJSON, _ := json.Marshal(p.Tags)
		newJSON, _ := json.Marshal(tags)
		p.Tags = tags
		return string(oldJSON), string(newJSON), nil
	case "startDate":
		start, err := parseDateString(value, "startDate", true)
		if err != nil {
			return "", "", err
		}
		if !p.EndDate.After(start) {
			return "", "", invalidInput("startDate %s must be before endDate %s", start.Format(time.RFC3339), p.EndDate.Format(time.RFC3339))
		}
		old := p.StartDate.Format(time.RFC3339)
		p.StartDate = start
		return old, start.Format(time.RFC3339), nil
	case "endDate":
		end, err := parseDateString(value, "endDate", true)
		if err != nil {
			return "", "", err
		}
		if !end.After(p.StartDate) {
			return "", "", invalidInput("endDate %s must be after startDate %s", end.Format(time.RFC3339), p.StartDate.Format(time.RFC3339))
		}
		old := p.EndDate.Format(time.RFC3339)
		p.EndDate = end
		return old, end.Format(time.RFC3339), nil
	case "targetSignatures":
		target, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return "", "", invalidInput("targetSignatures must be an integer: %v", err)
		}
		if target <= 0 {
			return "", "", invalidInput("targetSignatures must be positive, got %d", target)
		}
		old := strconv.Itoa(p.TargetSignatures)
		p.TargetSignatures = target
		return old, strconv.Itoa(target), nil
	}
	return "", "", invalidInput("field '%s' cannot be updated", field)
}

// DeleteDraft removes a DRAFT petition and everything stored under its id.
func (s *PetitionSmartContract) DeleteDraft(ctx contractapi.TransactionContextInterface, petitionID string) error {
	actor, err := s.getCurrentActorInfo(ctx)
	if err != nil {
		return fmt.Errorf("DeleteDraft: failed to get actor info: %w", err)
	}
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("DeleteDraft: %w", err)
	}
	p, _, err := s.loadOwnedPetition(ctx, petitionID, opDeleteDraft, actor)
	if err != nil {
		return err
	}
	if err := s.purgePetition(ctx, p); err != nil {
		return fmt.Errorf("DeleteDraft: %w", err)
	}
	if err := s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:          model.EventDraftDeleted,
		PreviousState: p.State,
	}, p, actor, now); err != nil {
		return err
	}
	logger.Infof("Draft petition '%s' deleted by '%s'", petitionID, actor.alias)
	return nil
}
