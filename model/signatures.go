package model

import "time"

// SignatureAction names an entry in a petition's signature history.
type SignatureAction string

const (
	ActionSigned    SignatureAction = "SIGNED"
	ActionWithdrawn SignatureAction = "WITHDRAWN"
)

// Signature is an active expression of support by one identity for one petition.
type Signature struct {
	ObjectType  string    `json:"objectType"` // "Signature"
	PetitionID  string    `json:"petitionId"`
	SignerID    string    `json:"signerId"`
	SignerMSP   string    `json:"signerMsp"`
	SignerAlias string    `json:"signerAlias"`
	SignedAt    time.Time `json:"signedAt"`
	Message     string    `json:"message"`
}

// SignatureLogEntry is one append-only history record. Withdrawal does not erase SIGNED entries.
type SignatureLogEntry struct {
	ObjectType string          `json:"objectType"` // "SignatureLog"
	PetitionID string          `json:"petitionId"`
	Seq        int             `json:"seq"`
	Action     SignatureAction `json:"action"`
	SignerID   string          `json:"signerId"`
	Timestamp  time.Time       `json:"timestamp"`
	Message    string          `json:"message"`
}

// Milestone marks that a petition's signature count crossed a fixed share of its target.
type Milestone struct {
	ObjectType     string    `json:"objectType"` // "Milestone"
	PetitionID     string    `json:"petitionId"`
	Threshold      int       `json:"threshold"`
	Percent        int       `json:"percent"` // 25, 50, 75 or 100
	SignatureCount int       `json:"signatureCount"`
	ReachedAt      time.Time `json:"reachedAt"`
}
