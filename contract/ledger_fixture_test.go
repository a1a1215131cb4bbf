package contract

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Petition window shared by most tests: opens at windowStart, closes 30 days later.
var (
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = windowStart.Add(30 * 24 * time.Hour)
)

const testMSP = "Org1MSP"

func idOf(name string) string {
	return "x509::CN=" + name + ",OU=client::CN=ca.org1.example.com"
}

type fakeIdentity struct {
	id  string
	msp string
}

func (f *fakeIdentity) GetID() (string, error) { return f.id, nil }
func (f *fakeIdentity) GetMSPID() (string, error) { return f.msp, nil }

func (f *fakeIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeIdentity) AssertAttributeValue(name, _ string) error {
	return fmt.Errorf("attribute %s not present", name)
}

func (f *fakeIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

// testLedger drives a contract against a MockStub, one transaction per call.
type testLedger struct {
	t        *testing.T
	stub     *shimtest.MockStub
	contract *PetitionSmartContract
	txSeq    int
	events   []model.PetitionEvent
}

func newTestLedger(t *testing.T) *testLedger {
	return newTestLedgerWith(t, DefaultRuleset(), nil)
}

func newTestLedgerWith(t *testing.T, rules Ruleset, ids IDGenerator) *testLedger {
	t.Helper()
	return &testLedger{
		t:        t,
		stub:     shimtest.NewMockStub("petitionledger", nil),
		contract: NewPetitionSmartContract(rules, ids),
	}
}

// tx runs fn as caller at the given transaction time and collects the emitted event.
func (l *testLedger) tx(caller string, at time.Time, fn func(ctx contractapi.TransactionContextInterface) error) error {
	l.t.Helper()
	l.txSeq++
	l.stub.MockTransactionStart(fmt.Sprintf("tx%04d", l.txSeq))
	l.stub.TxTimestamp = timestamppb.New(at)

	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(l.stub)
	ctx.SetClientIdentity(&fakeIdentity{id: idOf(caller), msp: testMSP})

	err := fn(ctx)
	l.stub.MockTransactionEnd(fmt.Sprintf("tx%04d", l.txSeq))
	l.drainEvents()
	return err
}

func (l *testLedger) drainEvents() {
	for {
		select {
		case ev := <-l.stub.ChaincodeEventsChannel:
			var payload model.PetitionEvent
			require.NoError(l.t, json.Unmarshal(ev.Payload, &payload))
			require.Equal(l.t, ev.EventName, payload.Type)
			l.events = append(l.events, payload)
		default:
			return
		}
	}
}

func (l *testLedger) lastEvent() model.PetitionEvent {
	l.t.Helper()
	require.NotEmpty(l.t, l.events, "no chaincode event was emitted")
	return l.events[len(l.events)-1]
}

func (l *testLedger) createDraft(creator string, target int) string {
	l.t.Helper()
	var id string
	err := l.tx(creator, windowStart.Add(-time.Hour), func(ctx contractapi.TransactionContextInterface) error {
		p, err := l.contract.CreatePetition(ctx, "Save the river", "Stop the dumping", "ipfs://img",
			"ipfs://meta", "environment", `["water","river"]`,
			windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339), target)
		if err != nil {
			return err
		}
		id = p.ID
		return nil
	})
	require.NoError(l.t, err)
	return id
}

func (l *testLedger) createPublished(creator string, target int) string {
	l.t.Helper()
	id := l.createDraft(creator, target)
	require.NoError(l.t, l.publish(creator, id))
	return id
}

func (l *testLedger) publish(caller, petitionID string) error {
	return l.tx(caller, windowStart.Add(-time.Minute), func(ctx contractapi.TransactionContextInterface) error {
		return l.contract.PublishPetition(ctx, petitionID)
	})
}

func (l *testLedger) sign(caller, petitionID, message string, at time.Time) error {
	return l.tx(caller, at, func(ctx contractapi.TransactionContextInterface) error {
		return l.contract.SignPetition(ctx, petitionID, message)
	})
}

func (l *testLedger) withdraw(caller, petitionID string, at time.Time) error {
	return l.tx(caller, at, func(ctx contractapi.TransactionContextInterface) error {
		return l.contract.WithdrawSignature(ctx, petitionID)
	})
}

func (l *testLedger) petition(petitionID string) *model.Petition {
	l.t.Helper()
	var p *model.Petition
	err := l.tx("reader", windowStart, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		p, err = l.contract.GetPetition(ctx, petitionID)
		return err
	})
	require.NoError(l.t, err)
	return p
}

func (l *testLedger) userStats(name string) *model.UserStats {
	l.t.Helper()
	var st *model.UserStats
	err := l.tx("reader", windowStart, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		st, err = l.contract.GetUserStats(ctx, idOf(name))
		return err
	})
	require.NoError(l.t, err)
	return st
}

func (l *testLedger) integrity(petitionID string) *model.IntegrityReport {
	l.t.Helper()
	var report *model.IntegrityReport
	err := l.tx("reader", windowStart, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		report, err = l.contract.VerifyPetitionIntegrity(ctx, petitionID)
		return err
	})
	require.NoError(l.t, err)
	return report
}

// fixedIDs hands out the same id every time.
type fixedIDs string

func (f fixedIDs) NextPetitionID(shim.ChaincodeStubInterface) (string, error) {
	return string(f), nil
}

func (f fixedIDs) Consume(shim.ChaincodeStubInterface, string) error {
	return nil
}
