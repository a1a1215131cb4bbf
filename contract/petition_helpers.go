package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
// All temporal rules compare against this value, never against the peer's wall clock.
func (s *PetitionSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime().UTC(), nil
}

// getCurrentActorInfo resolves the invoker's full id, MSP and (if registered) alias.
func (s *PetitionSmartContract) getCurrentActorInfo(ctx contractapi.TransactionContextInterface) (*actorInfo, error) {
	im := NewIdentityManager(ctx)
	fullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's FullID: %w", err)
	}
	mspID, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return nil, fmt.Errorf("failed to get current actor's MSPID: %w", err)
	}
	return &actorInfo{fullID: fullID, alias: im.aliasFor(fullID), mspID: mspID}, nil
}

// --- Validation Helper Functions ---

func validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return invalidInput("%s cannot be empty", field)
	}
	if utf8.RuneCountInString(input) > max {
		return invalidInput("%s exceeds max length %d", field, max)
	}
	return nil
}

func validateOptionalString(input, field string, max int) error {
	if input != "" && utf8.RuneCountInString(input) > max {
		return invalidInput("%s exceeds max length %d", field, max)
	}
	return nil
}

func validateStringArray(arr []string, field string, maxItems, maxItemLen int) error {
	if len(arr) > maxItems {
		return invalidInput("%s has %d items, exceeding maximum of %d", field, len(arr), maxItems)
	}
	for i, v := range arr {
		if err := validateRequiredString(v, fmt.Sprintf("%s[%d]", field, i), maxItemLen); err != nil {
			return err
		}
	}
	return nil
}

func validateCategory(raw string) (model.Category, error) {
	c := model.Category(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range model.AllCategories {
		if c == known {
			return c, nil
		}
	}
	return "", invalidInput("unknown category '%s'", raw)
}

func validateState(raw string) (model.PetitionState, error) {
	st := model.PetitionState(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range model.AllStates {
		if st == known {
			return st, nil
		}
	}
	return "", invalidInput("unknown petition state '%s'", raw)
}

func parseDateString(str, field string, required bool) (time.Time, error) {
	sTrimmed := strings.TrimSpace(str)
	if sTrimmed == "" {
		if required {
			return time.Time{}, invalidInput("%s is a required date field and cannot be empty", field)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, sTrimmed)
	if err != nil {
		return time.Time{}, invalidInput("invalid format for %s (expected RFC3339 'YYYY-MM-DDTHH:MM:SSZ'): %v", field, err)
	}
	return t.UTC(), nil
}

// parseTagsJSON accepts a JSON array of strings. An empty argument means no tags.
func parseTagsJSON(tagsJSON string) ([]string, error) {
	if strings.TrimSpace(tagsJSON) == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil, invalidInput("tags must be a JSON array of strings: %v", err)
	}
	if tags == nil {
		tags = []string{}
	}
	for i := range tags {
		tags[i] = strings.TrimSpace(tags[i])
	}
	if err := validateStringArray(tags, "tags", maxTags, maxTagLength); err != nil {
		return nil, err
	}
	return tags, nil
}

// petitionDraft carries the user-supplied fields of a new petition after validation.
type petitionDraft struct {
	Title            string
	Description      string
	ImageRef         string
	MetadataRef      string
	Category         model.Category
	Tags             []string
	StartDate        time.Time
	EndDate          time.Time
	TargetSignatures int
}

func validatePetitionArgs(title, description, imageRef, metadataRef, category, tagsJSON, startDate, endDate string, targetSignatures int) (*petitionDraft, error) {
	if err := validateRequiredString(title, "title", maxTitleLength); err != nil {
		return nil, err
	}
	if err := validateOptionalString(description, "description", maxDescriptionLength); err != nil {
		return nil, err
	}
	if err := validateOptionalString(imageRef, "imageRef", maxRefLength); err != nil {
		return nil, err
	}
	if err := validateRequiredString(metadataRef, "metadataRef", maxRefLength); err != nil {
		return nil, err
	}
	cat, err := validateCategory(category)
	if err != nil {
		return nil, err
	}
	tags, err := parseTagsJSON(tagsJSON)
	if err != nil {
		return nil, err
	}
	start, err := parseDateString(startDate, "startDate", true)
	if err != nil {
		return nil, err
	}
	end, err := parseDateString(endDate, "endDate", true)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, invalidInput("endDate %s must be after startDate %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if targetSignatures <= 0 {
		return nil, invalidInput("targetSignatures must be positive, got %d", targetSignatures)
	}
	return &petitionDraft{
		Title:            strings.TrimSpace(title),
		Description:      description,
		ImageRef:         strings.TrimSpace(imageRef),
		MetadataRef:      strings.TrimSpace(metadataRef),
		Category:         cat,
		Tags:             tags,
		StartDate:        start,
		EndDate:          end,
		TargetSignatures: targetSignatures,
	}, nil
}

// normalizePagination clamps a negative offset to 0 and applies the default page size and the upper cap.
func normalizePagination(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}

// --- Other General Helper Methods ---

func ensurePetitionSchemaCompliance(p *model.Petition) {
	if p == nil {
		return
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

// enrichPetitionAlias fills the creator alias from the alias registry when it is missing.
func enrichPetitionAlias(im *IdentityManager, p *model.Petition) {
	if p == nil || p.CreatorAlias != "" {
		return
	}
	p.CreatorAlias = im.aliasFor(p.CreatorID)
}

// emitPetitionEvent sets the transaction's single chaincode event. The petition, when given,
// supplies the id, state and counters of the payload.
func (s *PetitionSmartContract) emitPetitionEvent(ctx contractapi.TransactionContextInterface, event *model.PetitionEvent, p *model.Petition, actor *actorInfo, now time.Time) error {
	event.TxID = ctx.GetStub().GetTxID()
	event.Timestamp = now
	if p != nil {
		event.PetitionID = p.ID
		event.CreatorID = p.CreatorID
		event.Category = p.Category
		event.State = p.State
		event.SignatureCount = p.SignatureCount
		event.TargetSignatures = p.TargetSignatures
	}
	if actor != nil {
		event.ActorID = actor.fullID
		event.ActorAlias = actor.alias
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload for '%s': %w", event.Type, err)
	}
	if err := ctx.GetStub().SetEvent(event.Type, eventBytes); err != nil {
		return fmt.Errorf("failed to set event '%s' for petition '%s': %w", event.Type, event.PetitionID, err)
	}
	logger.Debugf("Event '%s' set for petition '%s' in tx %s", event.Type, event.PetitionID, event.TxID)
	return nil
}
