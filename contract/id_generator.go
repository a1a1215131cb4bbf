package contract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
)

// IDGenerator allocates petition identifiers. Implementations must be deterministic for a
// given proposal so that every endorser computes the same id.
type IDGenerator interface {
	// NextPetitionID proposes the id for the petition created by this transaction. It must
	// not write to the world state.
	NextPetitionID(stub shim.ChaincodeStubInterface) (string, error)
	// Consume records that the proposed id was used. It runs after every guard has passed.
	Consume(stub shim.ChaincodeStubInterface, id string) error
}

// ID strategy names accepted by IDGeneratorForStrategy.
const (
	IDStrategySequence = "sequence"
	IDStrategyUUID     = "uuid"
)

const petitionCounterKey = "PetitionCounter"

// IDGeneratorForStrategy returns the allocator registered under name.
func IDGeneratorForStrategy(name string) (IDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", IDStrategySequence:
		return NewLedgerSequence(), nil
	case IDStrategyUUID:
		return NewTxUUID(), nil
	default:
		return nil, fmt.Errorf("unknown petition id strategy '%s' (want %s or %s)", name, IDStrategySequence, IDStrategyUUID)
	}
}

// LedgerSequence hands out PET-00000001, PET-00000002, ... from a counter kept in world state.
// Concurrent creations conflict on the counter key and all but one fail MVCC validation.
type LedgerSequence struct {
	CounterKey string
	Prefix     string
}

func NewLedgerSequence() *LedgerSequence {
	return &LedgerSequence{CounterKey: petitionCounterKey, Prefix: "PET-"}
}

func (g *LedgerSequence) current(stub shim.ChaincodeStubInterface) (uint64, error) {
	raw, err := stub.GetState(g.CounterKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read petition counter: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt petition counter %q: %w", raw, err)
	}
	return n, nil
}

func (g *LedgerSequence) format(n uint64) string {
	return fmt.Sprintf("%s%08d", g.Prefix, n)
}

func (g *LedgerSequence) NextPetitionID(stub shim.ChaincodeStubInterface) (string, error) {
	n, err := g.current(stub)
	if err != nil {
		return "", err
	}
	return g.format(n + 1), nil
}

func (g *LedgerSequence) Consume(stub shim.ChaincodeStubInterface, id string) error {
	n, err := g.current(stub)
	if err != nil {
		return err
	}
	if want := g.format(n + 1); id != want {
		return fmt.Errorf("petition id '%s' is not the next sequence value '%s'", id, want)
	}
	if err := stub.PutState(g.CounterKey, []byte(strconv.FormatUint(n+1, 10))); err != nil {
		return fmt.Errorf("failed to advance petition counter: %w", err)
	}
	return nil
}

// TxUUID derives a name-based UUID from the channel and transaction id. It keeps no counter,
// so creations never contend with each other.
type TxUUID struct {
	Namespace uuid.UUID
}

func NewTxUUID() *TxUUID {
	return &TxUUID{Namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte("petitionledger.petition"))}
}

func (g *TxUUID) NextPetitionID(stub shim.ChaincodeStubInterface) (string, error) {
	txID := stub.GetTxID()
	if txID == "" {
		return "", fmt.Errorf("transaction id is empty; cannot derive petition id")
	}
	return uuid.NewSHA1(g.Namespace, []byte(stub.GetChannelID()+"/"+txID)).String(), nil
}

func (g *TxUUID) Consume(shim.ChaincodeStubInterface, string) error {
	return nil
}
