//go:build property
// +build property

package contract

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"petitionledger/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSignatureCountMatchesActiveSigners replays random sign and withdraw sequences.
// Property: after every step the stored count equals the number of active signer keys, the
// count is never negative and milestones are unique, ascending and each sits on one of the
// quarter thresholds of the target with its matching percent.
func TestSignatureCountMatchesActiveSigners(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("stored count tracks active signers", prop.ForAll(
		func(steps []int, target int) bool {
			rules := DefaultRuleset()
			rules.AllowResign = true
			l := newTestLedgerWith(t, rules, nil)
			id := l.createPublished("creator", target)
			at := windowStart.Add(time.Hour)

			for i, step := range steps {
				signer := fmt.Sprintf("signer-%d", step%6)
				now := at.Add(time.Duration(i) * time.Minute)
				if step < 6 {
					_ = l.sign(signer, id, "", now)
				} else {
					_ = l.withdraw(signer, id, now)
				}
				report := l.integrity(id)
				if !report.Consistent || report.StoredCount < 0 {
					return false
				}
			}

			var milestones []*model.Milestone
			_ = l.tx("reader", at, func(ctx contractapi.TransactionContextInterface) error {
				var err error
				milestones, err = l.contract.GetMilestones(ctx, id)
				return err
			})
			for i, m := range milestones {
				if i > 0 && m.Threshold <= milestones[i-1].Threshold {
					return false
				}
				if !onQuarterThreshold(target, m) {
					return false
				}
			}
			return len(milestones) <= 4
		},
		gen.SliceOf(gen.IntRange(0, 11)),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// onQuarterThreshold reports whether m uses a positive threshold from milestoneThresholds(target)
// and the percent of the first quarter that maps to it.
func onQuarterThreshold(target int, m *model.Milestone) bool {
	if m.Threshold <= 0 {
		return false
	}
	for i, th := range milestoneThresholds(target) {
		if th == m.Threshold {
			return m.Percent == milestonePercents[i]
		}
	}
	return false
}

// TestNextStateOnlyFailsWithInvalidState checks that every transition outcome is either a
// known state or an INVALID_STATE error.
func TestNextStateOnlyFailsWithInvalidState(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	states := append([]model.PetitionState{stateAbsent}, model.AllStates...)
	properties.Property("nextState is total", prop.ForAll(
		func(si, oi int) bool {
			st := states[si]
			next, err := nextState(st, allLifecycleOps[oi])
			if err != nil {
				return next == st && errors.Is(err, ErrInvalidState)
			}
			if st.IsTerminal() {
				return false
			}
			return next == stateAbsent || next == model.StateDraft || next == model.StatePublished ||
				next.IsTerminal()
		},
		gen.IntRange(0, len(states)-1),
		gen.IntRange(0, len(allLifecycleOps)-1),
	))

	properties.TestingRun(t)
}
