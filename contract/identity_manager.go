package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var idLogger = flogging.MustGetLogger("petitionledger.identity")

// Object types for composite keys, also usable as 'objectType' in CouchDB.
const (
	identityObjectType = "IdentityInfo" // Stores IdentityInfo objects. Attribute for composite key: FullID.
	aliasObjectType    = "Alias"        // Maps ShortName (alias) to FullID. Attribute for composite key: ShortName.
)

const (
	minAliasLength = 3
	maxAliasLength = 64
)

// IdentityManager resolves callers and maintains the optional alias registry. Aliases carry
// no privileges: every participant is an equal, anonymous-by-default identity.
type IdentityManager struct {
	Ctx contractapi.TransactionContextInterface
}

// NewIdentityManager creates a new instance of IdentityManager.
func NewIdentityManager(ctx contractapi.TransactionContextInterface) *IdentityManager {
	return &IdentityManager{Ctx: ctx}
}

func isValidX509ID(id string) bool {
	return strings.HasPrefix(id, "x509::") || strings.HasPrefix(id, "eDUwOTo6") // "eDUwOTo6" is "x509::" base64 encoded
}

func validateAlias(shortName string) error {
	n := len(shortName)
	if n < minAliasLength || n > maxAliasLength {
		return invalidInput("alias must be between %d and %d characters, got %d", minAliasLength, maxAliasLength, n)
	}
	if isValidX509ID(shortName) {
		return invalidInput("alias '%s' must not look like an X.509 identity", shortName)
	}
	for _, r := range shortName {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return invalidInput("alias '%s' contains invalid character %q", shortName, r)
		}
	}
	return nil
}

// --- Key Creation Helpers (using Composite Keys) ---

func (im *IdentityManager) createIdentityCompositeKey(fullID string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(identityObjectType, []string{fullID})
}

func (im *IdentityManager) createAliasCompositeKey(shortName string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(aliasObjectType, []string{shortName})
}

// --- Public Identity Management Functions ---

// RegisterAlias binds shortName to the calling identity, replacing any alias it held before.
func (im *IdentityManager) RegisterAlias(shortName string, now time.Time) (*model.IdentityInfo, error) {
	shortName = strings.TrimSpace(shortName)
	if err := validateAlias(shortName); err != nil {
		return nil, err
	}
	callerFullID, err := im.GetCurrentIdentityFullID()
	if err != nil {
		return nil, fmt.Errorf("RegisterAlias: %w", err)
	}
	callerMSPID, err := im.Ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return nil, fmt.Errorf("RegisterAlias: failed to get caller MSPID: %w", err)
	}

	aliasKey, err := im.createAliasCompositeKey(shortName)
	if err != nil {
		return nil, fmt.Errorf("failed to create alias composite key for '%s': %w", shortName, err)
	}
	existingFullIDForAliasBytes, err := im.Ctx.GetStub().GetState(aliasKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check alias availability for '%s': %w", shortName, err)
	}
	if existingFullIDForAliasBytes != nil && string(existingFullIDForAliasBytes) != callerFullID {
		return nil, alreadyExists("alias '%s' is already in use", shortName)
	}

	identityKey, err := im.createIdentityCompositeKey(callerFullID)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity composite key for '%s': %w", callerFullID, err)
	}
	identityInfoBytes, err := im.Ctx.GetStub().GetState(identityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get identity state for '%s': %w", callerFullID, err)
	}

	var idInfo model.IdentityInfo
	if identityInfoBytes == nil {
		idInfo = model.IdentityInfo{
			ObjectType:      identityObjectType,
			FullID:          callerFullID,
			ShortName:       shortName,
			OrganizationMSP: callerMSPID,
			RegisteredAt:    now,
			LastUpdatedAt:   now,
		}
		idLogger.Infof("Registering alias '%s' for identity %s (MSP %s)", shortName, callerFullID, callerMSPID)
	} else {
		if err := json.Unmarshal(identityInfoBytes, &idInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal existing IdentityInfo for '%s': %w", callerFullID, err)
		}
		if idInfo.ShortName != shortName && idInfo.ShortName != "" {
			oldAliasKey, keyErr := im.createAliasCompositeKey(idInfo.ShortName)
			if keyErr != nil {
				return nil, fmt.Errorf("failed to create key for old alias '%s': %w", idInfo.ShortName, keyErr)
			}
			if errDel := im.Ctx.GetStub().DelState(oldAliasKey); errDel != nil {
				return nil, fmt.Errorf("failed to release old alias '%s': %w", idInfo.ShortName, errDel)
			}
			idLogger.Infof("Identity %s renamed alias '%s' -> '%s'", callerFullID, idInfo.ShortName, shortName)
		}
		idInfo.ShortName = shortName
		idInfo.OrganizationMSP = callerMSPID
		idInfo.LastUpdatedAt = now
	}

	updatedIdentityInfoBytes, err := json.Marshal(idInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal IdentityInfo for '%s': %w", callerFullID, err)
	}
	if err := im.Ctx.GetStub().PutState(identityKey, updatedIdentityInfoBytes); err != nil {
		return nil, fmt.Errorf("failed to save IdentityInfo for '%s': %w", callerFullID, err)
	}
	if err := im.Ctx.GetStub().PutState(aliasKey, []byte(callerFullID)); err != nil {
		return nil, fmt.Errorf("failed to save alias mapping for '%s': %w", shortName, err)
	}
	return &idInfo, nil
}

// ResolveIdentity maps an alias to its full id. Full X.509 ids are returned unchanged.
func (im *IdentityManager) ResolveIdentity(identityOrAlias string) (string, error) {
	trimmedInput := strings.TrimSpace(identityOrAlias)
	if trimmedInput == "" {
		return "", invalidInput("identityOrAlias cannot be empty")
	}
	if isValidX509ID(trimmedInput) {
		return trimmedInput, nil
	}

	aliasKey, err := im.createAliasCompositeKey(trimmedInput)
	if err != nil {
		return "", fmt.Errorf("failed to create alias composite key for resolving '%s': %w", trimmedInput, err)
	}
	fullIDBytes, err := im.Ctx.GetStub().GetState(aliasKey)
	if err != nil {
		return "", fmt.Errorf("ledger error when querying alias '%s': %w", trimmedInput, err)
	}
	if fullIDBytes == nil {
		return "", notFound("alias '%s' not found", trimmedInput)
	}
	return string(fullIDBytes), nil
}

func (im *IdentityManager) GetIdentityInfo(identityOrAlias string) (*model.IdentityInfo, error) {
	fullID, err := im.ResolveIdentity(identityOrAlias)
	if err != nil {
		return nil, err
	}
	return im.getIdentityInfoByFullID(fullID)
}

func (im *IdentityManager) getIdentityInfoByFullID(fullID string) (*model.IdentityInfo, error) {
	identityKey, err := im.createIdentityCompositeKey(fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity composite key for '%s': %w", fullID, err)
	}
	identityInfoBytes, err := im.Ctx.GetStub().GetState(identityKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving IdentityInfo for FullID '%s': %w", fullID, err)
	}
	if identityInfoBytes == nil {
		return nil, notFound("no alias registered for identity '%s'", fullID)
	}
	var idInfo model.IdentityInfo
	if err := json.Unmarshal(identityInfoBytes, &idInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal IdentityInfo for FullID '%s': %w", fullID, err)
	}
	return &idInfo, nil
}

// aliasFor is a best-effort lookup used to decorate records; it returns "" when none is registered.
func (im *IdentityManager) aliasFor(fullID string) string {
	if fullID == "" {
		return ""
	}
	info, err := im.getIdentityInfoByFullID(fullID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			idLogger.Warningf("alias lookup for %s failed: %v", fullID, err)
		}
		return ""
	}
	return info.ShortName
}

// GetCurrentIdentityFullID retrieves the full X.509 ID of the current transactor.
func (im *IdentityManager) GetCurrentIdentityFullID() (string, error) {
	clientIdentity := im.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	if !isValidX509ID(id) {
		idLogger.Warningf("Current client ID '%s' does not appear to be a standard X.509 format.", id)
	}
	return id, nil
}

// GetAllAliases lists registered aliases in lexical order.
func (im *IdentityManager) GetAllAliases() ([]string, error) {
	resultsIterator, err := im.Ctx.GetStub().GetStateByPartialCompositeKey(aliasObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get alias iterator: %w", err)
	}
	defer resultsIterator.Close()

	aliases := []string{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			return nil, fmt.Errorf("failed to iterate aliases: %w", iterErr)
		}
		_, attrs, splitErr := im.Ctx.GetStub().SplitCompositeKey(queryResponse.Key)
		if splitErr != nil || len(attrs) != 1 {
			idLogger.Warningf("Skipping malformed alias key '%s': %v", queryResponse.Key, splitErr)
			continue
		}
		aliases = append(aliases, attrs[0])
	}
	sort.Strings(aliases)
	return aliases, nil
}
