package contract

import (
	"strings"
	"testing"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUntilCompleted(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 4)
	at := windowStart.Add(time.Hour)

	signers := []string{"bob", "carol", "dave", "erin"}
	wantEvents := []string{
		model.EventMilestoneReached,
		model.EventMilestoneReached,
		model.EventMilestoneReached,
		model.EventPetitionCompleted,
	}
	for i, signer := range signers {
		require.NoError(t, l.sign(signer, id, "count me in", at.Add(time.Duration(i)*time.Minute)))
		ev := l.lastEvent()
		assert.Equal(t, wantEvents[i], ev.Type, signer)
		assert.Equal(t, i+1, ev.SignatureCount)
		require.NotNil(t, ev.Milestone, signer)
		assert.Equal(t, (i+1)*25, ev.Milestone.Percent)
	}

	final := l.lastEvent()
	assert.Equal(t, model.StateCompleted, final.State)
	assert.Equal(t, model.StatePublished, final.PreviousState)
	assert.Equal(t, map[string]int{idOf("erin"): reputationForSign, idOf("alice"): reputationForCompletion}, final.ReputationDeltas)

	p := l.petition(id)
	assert.Equal(t, model.StateCompleted, p.State)
	assert.Equal(t, 4, p.SignatureCount)
	require.False(t, p.CompletedAt.IsZero())

	var milestones []*model.Milestone
	err := l.tx("reader", at, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		milestones, err = l.contract.GetMilestones(ctx, id)
		return err
	})
	require.NoError(t, err)
	require.Len(t, milestones, 4)
	for i, m := range milestones {
		assert.Equal(t, i+1, m.Threshold)
		assert.Equal(t, (i+1)*25, m.Percent)
		assert.Equal(t, i+1, m.SignatureCount)
	}

	assert.Equal(t, 110, l.userStats("alice").ReputationScore)
	for _, signer := range signers {
		st := l.userStats(signer)
		assert.Equal(t, 1, st.PetitionsSigned, signer)
		assert.Equal(t, 1, st.ReputationScore, signer)
	}

	assert.ErrorIs(t, l.sign("frank", id, "", at.Add(time.Hour)), ErrInvalidState)
	assert.True(t, l.integrity(id).Consistent)
}

func TestSignPlainEventBetweenMilestones(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	at := windowStart.Add(time.Hour)

	require.NoError(t, l.sign("s1", id, "", at))
	ev := l.lastEvent()
	assert.Equal(t, model.EventPetitionSigned, ev.Type)
	assert.Nil(t, ev.Milestone)

	require.NoError(t, l.sign("s2", id, "", at))
	assert.Equal(t, model.EventMilestoneReached, l.lastEvent().Type)
	require.NoError(t, l.sign("s3", id, "", at))
	assert.Equal(t, model.EventPetitionSigned, l.lastEvent().Type)
}

func TestMilestoneFiresOncePerThreshold(t *testing.T) {
	l := newTestLedgerWith(t, Ruleset{WithdrawWindow: 24 * time.Hour, MaxMessageLength: 280, AllowResign: true}, nil)
	id := l.createPublished("alice", 4)
	at := windowStart.Add(time.Hour)

	require.NoError(t, l.sign("bob", id, "", at))
	assert.Equal(t, model.EventMilestoneReached, l.lastEvent().Type)
	require.NoError(t, l.withdraw("bob", id, at.Add(time.Minute)))
	require.NoError(t, l.sign("bob", id, "", at.Add(2*time.Minute)))
	assert.Equal(t, model.EventPetitionSigned, l.lastEvent().Type)

	err := l.tx("reader", at, func(ctx contractapi.TransactionContextInterface) error {
		milestones, err := l.contract.GetMilestones(ctx, id)
		require.NoError(t, err)
		assert.Len(t, milestones, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestSignRejectsDuplicate(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	at := windowStart.Add(time.Hour)

	require.NoError(t, l.sign("bob", id, "", at))
	assert.ErrorIs(t, l.sign("bob", id, "again", at.Add(time.Minute)), ErrDuplicate)
	assert.Equal(t, 1, l.petition(id).SignatureCount)
}

func TestSignRejectsCreator(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	assert.ErrorIs(t, l.sign("alice", id, "", windowStart.Add(time.Hour)), ErrUnauthorized)
}

func TestSelfSignCompletesWhenAllowed(t *testing.T) {
	rules := DefaultRuleset()
	rules.AllowSelfSign = true
	l := newTestLedgerWith(t, rules, nil)
	id := l.createPublished("alice", 1)

	require.NoError(t, l.sign("alice", id, "", windowStart.Add(time.Hour)))
	assert.Equal(t, model.EventPetitionCompleted, l.lastEvent().Type)
	assert.Equal(t, map[string]int{idOf("alice"): reputationForSign + reputationForCompletion}, l.lastEvent().ReputationDeltas)

	st := l.userStats("alice")
	assert.Equal(t, 1, st.PetitionsCreated)
	assert.Equal(t, 1, st.PetitionsSigned)
	assert.Equal(t, 111, st.ReputationScore)
}

func TestSignMessageLength(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	at := windowStart.Add(time.Hour)

	assert.ErrorIs(t, l.sign("bob", id, strings.Repeat("é", 281), at), ErrInvalidInput)
	require.NoError(t, l.sign("bob", id, strings.Repeat("é", 280), at))

	var sigs []*model.Signature
	err := l.tx("reader", at, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		sigs, err = l.contract.GetSignatures(ctx, id)
		return err
	})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, strings.Repeat("é", 280), sigs[0].Message)
}

func TestSignTimeWindow(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)

	assert.ErrorIs(t, l.sign("early", id, "", windowStart.Add(-time.Second)), ErrTemporalViolation)
	assert.ErrorIs(t, l.sign("late", id, "", windowEnd.Add(time.Second)), ErrTemporalViolation)
	require.NoError(t, l.sign("first", id, "", windowStart))
	require.NoError(t, l.sign("last", id, "", windowEnd))
	assert.Equal(t, 2, l.petition(id).SignatureCount)
}

func TestSignRequiresPublished(t *testing.T) {
	l := newTestLedger(t)
	draft := l.createDraft("alice", 10)
	at := windowStart.Add(time.Hour)

	assert.ErrorIs(t, l.sign("bob", draft, "", at), ErrInvalidState)
	assert.ErrorIs(t, l.sign("bob", "PET-404", "", at), ErrNotFound)
}

func TestWithdrawWithinWindow(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	signedAt := windowStart.Add(time.Hour)
	require.NoError(t, l.sign("bob", id, "support", signedAt))

	require.NoError(t, l.withdraw("bob", id, signedAt.Add(23*time.Hour)))
	ev := l.lastEvent()
	assert.Equal(t, model.EventSignatureWithdrawn, ev.Type)
	assert.Equal(t, 0, ev.SignatureCount)

	assert.Zero(t, l.petition(id).SignatureCount)
	st := l.userStats("bob")
	assert.Zero(t, st.PetitionsSigned)
	assert.Equal(t, 1, st.ReputationScore)

	var history []*model.SignatureLogEntry
	err := l.tx("reader", signedAt, func(ctx contractapi.TransactionContextInterface) error {
		var err error
		history, err = l.contract.GetSignatureHistory(ctx, id)
		if err != nil {
			return err
		}
		signed, err := l.contract.HasSigned(ctx, id, idOf("bob"))
		require.NoError(t, err)
		assert.False(t, signed)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActionSigned, history[0].Action)
	assert.Equal(t, "support", history[0].Message)
	assert.Equal(t, model.ActionWithdrawn, history[1].Action)
	assert.Equal(t, 2, history[1].Seq)

	assert.True(t, l.integrity(id).Consistent)
}

func TestWithdrawWindowBoundary(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	signedAt := windowStart.Add(time.Hour)
	require.NoError(t, l.sign("bob", id, "", signedAt))
	require.NoError(t, l.sign("carol", id, "", signedAt))

	assert.ErrorIs(t, l.withdraw("bob", id, signedAt.Add(25*time.Hour)), ErrTemporalViolation)
	assert.Equal(t, 2, l.petition(id).SignatureCount)

	require.NoError(t, l.withdraw("carol", id, signedAt.Add(24*time.Hour)))
	assert.Equal(t, 1, l.petition(id).SignatureCount)
}

func TestWithdrawRequiresActiveSignature(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	at := windowStart.Add(time.Hour)

	assert.ErrorIs(t, l.withdraw("bob", id, at), ErrNotFound)
	assert.ErrorIs(t, l.withdraw("bob", "PET-404", at), ErrNotFound)

	require.NoError(t, l.sign("bob", id, "", at))
	require.NoError(t, l.withdraw("bob", id, at))
	assert.ErrorIs(t, l.withdraw("bob", id, at), ErrNotFound)
}

func TestResignAfterWithdrawal(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 10)
	at := windowStart.Add(time.Hour)
	require.NoError(t, l.sign("bob", id, "", at))
	require.NoError(t, l.withdraw("bob", id, at.Add(time.Hour)))

	assert.ErrorIs(t, l.sign("bob", id, "", at.Add(2*time.Hour)), ErrDuplicate)

	rules := DefaultRuleset()
	rules.AllowResign = true
	lenient := newTestLedgerWith(t, rules, nil)
	id = lenient.createPublished("alice", 10)
	require.NoError(t, lenient.sign("bob", id, "", at))
	require.NoError(t, lenient.withdraw("bob", id, at.Add(time.Hour)))
	require.NoError(t, lenient.sign("bob", id, "", at.Add(2*time.Hour)))
	assert.Equal(t, 1, lenient.petition(id).SignatureCount)
	assert.Equal(t, 2, lenient.userStats("bob").ReputationScore)
}

func TestWithdrawAfterCompletion(t *testing.T) {
	l := newTestLedger(t)
	id := l.createPublished("alice", 1)
	at := windowStart.Add(time.Hour)
	require.NoError(t, l.sign("bob", id, "", at))

	assert.ErrorIs(t, l.withdraw("bob", id, at.Add(time.Minute)), ErrInvalidState)
	assert.Equal(t, 1, l.petition(id).SignatureCount)
}

func TestSignaturesCarryAlias(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.registerAlias("bob", "bobby"))
	id := l.createPublished("alice", 10)
	require.NoError(t, l.sign("bob", id, "", windowStart.Add(time.Hour)))
	assert.Equal(t, "bobby", l.lastEvent().ActorAlias)

	err := l.tx("reader", windowStart, func(ctx contractapi.TransactionContextInterface) error {
		sigs, err := l.contract.GetSignatures(ctx, id)
		require.NoError(t, err)
		require.Len(t, sigs, 1)
		assert.Equal(t, "bobby", sigs[0].SignerAlias)

		signed, err := l.contract.HasSigned(ctx, id, "bobby")
		require.NoError(t, err)
		assert.True(t, signed)

		_, err = l.contract.HasSigned(ctx, id, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}
