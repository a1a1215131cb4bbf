package model

import "time"

// PetitionState defines the lifecycle phases of a petition.
type PetitionState string

const (
	StateDraft     PetitionState = "DRAFT"     // Created, editable, not yet signable
	StatePublished PetitionState = "PUBLISHED" // Open for signatures inside its time window
	StateCompleted PetitionState = "COMPLETED" // Target reached (terminal)
	StateCancelled PetitionState = "CANCELLED" // Withdrawn by its creator (terminal)
)

// AllStates lists every lifecycle state in declaration order.
var AllStates = []PetitionState{StateDraft, StatePublished, StateCompleted, StateCancelled}

// IsTerminal reports whether no further mutation is allowed in this state.
func (s PetitionState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Category is the closed set of petition categories.
type Category string

const (
	CategoryEnvironment   Category = "ENVIRONMENT"
	CategoryEducation     Category = "EDUCATION"
	CategoryHealth        Category = "HEALTH"
	CategoryHumanRights   Category = "HUMAN_RIGHTS"
	CategoryAnimalWelfare Category = "ANIMAL_WELFARE"
	CategoryPolitics      Category = "POLITICS"
	CategoryEconomy       Category = "ECONOMY"
	CategoryTechnology    Category = "TECHNOLOGY"
	CategoryCommunity     Category = "COMMUNITY"
	CategoryOther         Category = "OTHER"
)

// AllCategories lists every category in declaration order.
var AllCategories = []Category{
	CategoryEnvironment, CategoryEducation, CategoryHealth, CategoryHumanRights, CategoryAnimalWelfare,
	CategoryPolitics, CategoryEconomy, CategoryTechnology, CategoryCommunity, CategoryOther,
}

// Petition is the root record of the ledger.
type Petition struct {
	ObjectType       string        `json:"objectType"` // "Petition"
	ID               string        `json:"id"`
	CreatorID        string        `json:"creatorId"`
	CreatorMSP       string        `json:"creatorMsp"`
	CreatorAlias     string        `json:"creatorAlias"` // Populated on reads from the alias registry
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	ImageRef         string        `json:"imageRef"`
	MetadataRef      string        `json:"metadataRef"` // Opaque content address, never dereferenced
	Category         Category      `json:"category"`
	Tags             []string      `json:"tags"`
	State            PetitionState `json:"state"`
	CreatedAt        time.Time     `json:"createdAt"`
	PublishedAt      time.Time     `json:"publishedAt" metadata:",optional"`
	CompletedAt      time.Time     `json:"completedAt" metadata:",optional"`
	CancelledAt      time.Time     `json:"cancelledAt" metadata:",optional"`
	StartDate        time.Time     `json:"startDate"`
	EndDate          time.Time     `json:"endDate"`
	TargetSignatures int           `json:"targetSignatures"`
	SignatureCount   int           `json:"signatureCount"`
	LastUpdatedAt    time.Time     `json:"lastUpdatedAt"`
	HistorySeq       int           `json:"historySeq"` // Last sequence used by this petition's append-only logs
}

// UpdateLogEntry records one field edit. Entries are never rewritten.
type UpdateLogEntry struct {
	ObjectType string    `json:"objectType"` // "UpdateLog"
	PetitionID string    `json:"petitionId"`
	Seq        int       `json:"seq"`
	Field      string    `json:"field"`
	OldValue   string    `json:"oldValue"`
	NewValue   string    `json:"newValue"`
	UpdatedBy  string    `json:"updatedBy"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PetitionStats is a live projection of a petition's progress.
type PetitionStats struct {
	PetitionID      string        `json:"petitionId"`
	State           PetitionState `json:"state"`
	Count           int           `json:"count"`
	Target          int           `json:"target"`
	ProgressPercent int           `json:"progressPercent"` // Capped at 100
	HasStarted      bool          `json:"hasStarted"`
	HasEnded        bool          `json:"hasEnded"`
	IsSignable      bool          `json:"isSignable"`
}

// IntegrityReport compares the stored signature count with the active signer keys.
type IntegrityReport struct {
	PetitionID    string `json:"petitionId"`
	StoredCount   int    `json:"storedCount"`
	ActiveSigners int    `json:"activeSigners"`
	Consistent    bool   `json:"consistent"`
}

// PaginatedPetitionResponse is returned by offset/limit petition listings.
type PaginatedPetitionResponse struct {
	Petitions    []*Petition `json:"petitions"`
	Offset       int         `json:"offset"`
	Limit        int         `json:"limit"`
	Total        int         `json:"total"`
	FetchedCount int         `json:"fetchedCount"`
}
