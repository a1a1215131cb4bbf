package contract

import (
	"fmt"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("petitionledger.contract")

// Object types used for composite keys and as 'objectType' in stored documents.
const (
	petitionObjectType     = "Petition"
	byCreatorIndexType     = "PetitionByCreator"
	byCategoryIndexType    = "PetitionByCategory"
	byStateIndexType       = "PetitionByState"
	signatureObjectType    = "Signature"
	signatureLogObjectType = "SignatureLog"
	withdrawnObjectType    = "Withdrawn"
	milestoneObjectType    = "Milestone"
	updateLogObjectType    = "UpdateLog"
	userStatsObjectType    = "UserStats"
)

// Constants for input validation and limits
const (
	maxStringInputLength = 256
	maxTitleLength       = 200
	maxDescriptionLength = 5000
	maxRefLength         = 512
	maxTags              = 10
	maxTagLength         = 64
	defaultPageSize      = 10
	maxPageSize          = 100
)

// Reputation awarded by the stats aggregator.
const (
	reputationForCreate     = 10
	reputationForSign       = 1
	reputationForCompletion = 100
)

// Ruleset holds the tunable signing rules. Every endorsing peer must run with the same values,
// otherwise endorsements for the same proposal diverge.
type Ruleset struct {
	WithdrawWindow   time.Duration // How long after signing a signer may withdraw
	MaxMessageLength int           // Upper bound on a signature message, in characters
	AllowSelfSign    bool          // Whether a creator may sign their own petition
	AllowResign      bool          // Whether a signer who withdrew may sign again
}

// DefaultRuleset returns the base ruleset: 24h withdrawal window, 280 character messages,
// no self-signing and no re-signing after withdrawal.
func DefaultRuleset() Ruleset {
	return Ruleset{
		WithdrawWindow:   24 * time.Hour,
		MaxMessageLength: 280,
		AllowSelfSign:    false,
		AllowResign:      false,
	}
}

// PetitionSmartContract provides the petition lifecycle and signature ledger.
// @contract:PetitionSmartContract
type PetitionSmartContract struct {
	contractapi.Contract
	Rules Ruleset
	IDs   IDGenerator
}

// NewPetitionSmartContract wires a contract with the given rules and identifier allocator.
// A nil allocator falls back to the world-state sequence.
func NewPetitionSmartContract(rules Ruleset, ids IDGenerator) *PetitionSmartContract {
	if ids == nil {
		ids = NewLedgerSequence()
	}
	return &PetitionSmartContract{Rules: rules, IDs: ids}
}

// actorInfo holds commonly needed details about the transaction invoker.
type actorInfo struct {
	fullID string
	alias  string
	mspID  string
}

// Instantiate is called during chaincode instantiation.
func (s *PetitionSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Infof("PetitionSmartContract instantiated (withdraw window %s, max message %d, self-sign %v, re-sign %v)",
		s.Rules.WithdrawWindow, s.Rules.MaxMessageLength, s.Rules.AllowSelfSign, s.Rules.AllowResign)
}

// --- Identity wrappers (delegating to IdentityManager) ---

// RegisterAlias publishes a display alias for the calling identity.
func (s *PetitionSmartContract) RegisterAlias(ctx contractapi.TransactionContextInterface, shortName string) error {
	logger.Infof("Chaincode Call: RegisterAlias '%s'", shortName)
	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("RegisterAlias: %w", err)
	}
	im := NewIdentityManager(ctx)
	info, err := im.RegisterAlias(shortName, now)
	if err != nil {
		return err
	}
	actor := &actorInfo{fullID: info.FullID, alias: info.ShortName, mspID: info.OrganizationMSP}
	return s.emitPetitionEvent(ctx, &model.PetitionEvent{
		Type:    model.EventAliasRegistered,
		Details: map[string]string{"shortName": info.ShortName},
	}, nil, actor, now)
}

// GetIdentityDetails returns the alias record of an identity given its alias or full id.
func (s *PetitionSmartContract) GetIdentityDetails(ctx contractapi.TransactionContextInterface, identityOrAlias string) (*model.IdentityInfo, error) {
	logger.Debugf("Chaincode Call: GetIdentityDetails for '%s'", identityOrAlias)
	return NewIdentityManager(ctx).GetIdentityInfo(identityOrAlias)
}

// GetAllAliases returns every registered alias.
func (s *PetitionSmartContract) GetAllAliases(ctx contractapi.TransactionContextInterface) ([]string, error) {
	logger.Debug("Chaincode Call: GetAllAliases")
	return NewIdentityManager(ctx).GetAllAliases()
}
