// File: model/identities.go
package model

import "time"

// IdentityInfo stores the optional public alias of a participant.
type IdentityInfo struct {
	ObjectType      string    `json:"objectType"`      // Set to the composite key object type (IdentityInfo)
	FullID          string    `json:"fullId"`          // Full X.509 identity string
	ShortName       string    `json:"shortName"`       // Alias/short name for this identity
	OrganizationMSP string    `json:"organizationMsp"` // MSP ID of the organization
	RegisteredAt    time.Time `json:"registeredAt"`    // Timestamp when the alias was first registered
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`   // Timestamp of last update to this record
}

// UserStats holds the per-identity counters maintained as a side effect of ledger mutations.
type UserStats struct {
	ObjectType       string    `json:"objectType"` // "UserStats"
	Identity         string    `json:"identity"`
	Alias            string    `json:"alias"`
	PetitionsCreated int       `json:"petitionsCreated"`
	PetitionsSigned  int       `json:"petitionsSigned"`
	ReputationScore  int       `json:"reputationScore"`
	LastUpdatedAt    time.Time `json:"lastUpdatedAt"`
}
