package contract

import (
	"testing"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerSequenceProposesWithoutWriting(t *testing.T) {
	stub := shimtest.NewMockStub("ids", nil)
	stub.MockTransactionStart("tx1")
	defer stub.MockTransactionEnd("tx1")
	g := NewLedgerSequence()

	first, err := g.NextPetitionID(stub)
	require.NoError(t, err)
	again, err := g.NextPetitionID(stub)
	require.NoError(t, err)
	assert.Equal(t, "PET-00000001", first)
	assert.Equal(t, first, again)

	raw, err := stub.GetState(petitionCounterKey)
	require.NoError(t, err)
	assert.Nil(t, raw)

	require.NoError(t, g.Consume(stub, first))
	next, err := g.NextPetitionID(stub)
	require.NoError(t, err)
	assert.Equal(t, "PET-00000002", next)
}

func TestLedgerSequenceConsumeRejectsStaleID(t *testing.T) {
	stub := shimtest.NewMockStub("ids", nil)
	stub.MockTransactionStart("tx1")
	defer stub.MockTransactionEnd("tx1")
	g := NewLedgerSequence()

	require.NoError(t, g.Consume(stub, "PET-00000001"))
	assert.Error(t, g.Consume(stub, "PET-00000001"))
}

func TestLedgerSequenceCorruptCounter(t *testing.T) {
	stub := shimtest.NewMockStub("ids", nil)
	stub.MockTransactionStart("tx1")
	defer stub.MockTransactionEnd("tx1")
	require.NoError(t, stub.PutState(petitionCounterKey, []byte("seven")))

	_, err := NewLedgerSequence().NextPetitionID(stub)
	assert.Error(t, err)
}

func TestTxUUIDIsDeterministicPerTransaction(t *testing.T) {
	stub := shimtest.NewMockStub("ids", nil)
	g := NewTxUUID()

	stub.MockTransactionStart("tx-a")
	a1, err := g.NextPetitionID(stub)
	require.NoError(t, err)
	a2, err := g.NextPetitionID(stub)
	require.NoError(t, err)
	stub.MockTransactionEnd("tx-a")

	stub.MockTransactionStart("tx-b")
	b, err := g.NextPetitionID(stub)
	require.NoError(t, err)
	stub.MockTransactionEnd("tx-b")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	parsed, err := uuid.Parse(a1)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	_, err = g.NextPetitionID(stub)
	assert.Error(t, err, "no transaction in flight")
}

func TestIDGeneratorForStrategy(t *testing.T) {
	for _, name := range []string{"", "sequence", " Sequence "} {
		g, err := IDGeneratorForStrategy(name)
		require.NoError(t, err)
		assert.IsType(t, &LedgerSequence{}, g)
	}
	g, err := IDGeneratorForStrategy("uuid")
	require.NoError(t, err)
	assert.IsType(t, &TxUUID{}, g)

	_, err = IDGeneratorForStrategy("random")
	assert.Error(t, err)
}
