package model

import "time"

// Event names emitted by the chaincode. Exactly one event is set per successful transaction.
const (
	EventPetitionCreated    = "PetitionCreated"
	EventPetitionPublished  = "PetitionPublished"
	EventPetitionUpdated    = "PetitionUpdated"
	EventEndDateExtended    = "EndDateExtended"
	EventPetitionSigned     = "PetitionSigned"
	EventSignatureWithdrawn = "SignatureWithdrawn"
	EventMilestoneReached   = "MilestoneReached"
	EventPetitionCompleted  = "PetitionCompleted"
	EventPetitionCancelled  = "PetitionCancelled"
	EventDraftDeleted       = "DraftDeleted"
	EventAliasRegistered    = "AliasRegistered"
)

// PetitionEvent is the JSON payload of every chaincode event. Off-chain consumers rebuild
// their read models from it.
type PetitionEvent struct {
	Type             string            `json:"type"`
	TxID             string            `json:"txId"`
	PetitionID       string            `json:"petitionId"`
	CreatorID        string            `json:"creatorId"`
	Category         Category          `json:"category"`
	State            PetitionState     `json:"state"`
	PreviousState    PetitionState     `json:"previousState,omitempty"`
	SignatureCount   int               `json:"signatureCount"`
	TargetSignatures int               `json:"targetSignatures"`
	ActorID          string            `json:"actorId"`
	ActorAlias       string            `json:"actorAlias"`
	Timestamp        time.Time         `json:"timestamp"`
	Milestone        *Milestone        `json:"milestone,omitempty"`
	ReputationDeltas map[string]int    `json:"reputationDeltas,omitempty"`
	Details          map[string]string `json:"details,omitempty"`
}
