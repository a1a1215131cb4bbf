package contract

import (
	"errors"
	"fmt"
	"testing"

	"petitionledger/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStateIsTotal(t *testing.T) {
	allowed := map[model.PetitionState]map[lifecycleOp]model.PetitionState{
		stateAbsent: {
			opCreate:          model.StateDraft,
			opCreatePublished: model.StatePublished,
		},
		model.StateDraft: {
			opPublish:     model.StatePublished,
			opUpdateField: model.StateDraft,
			opDeleteDraft: stateAbsent,
		},
		model.StatePublished: {
			opUpdateField:   model.StatePublished,
			opExtendEndDate: model.StatePublished,
			opSign:          model.StatePublished,
			opWithdraw:      model.StatePublished,
			opComplete:      model.StateCompleted,
			opCancel:        model.StateCancelled,
		},
		model.StateCompleted: {},
		model.StateCancelled: {},
	}

	for state, transitions := range allowed {
		for _, op := range allLifecycleOps {
			name := fmt.Sprintf("%s/%s", state, op)
			if state == stateAbsent {
				name = "absent/" + string(op)
			}
			t.Run(name, func(t *testing.T) {
				next, err := nextState(state, op)
				want, ok := transitions[op]
				if !ok {
					require.Error(t, err)
					assert.True(t, errors.Is(err, ErrInvalidState), "got %v", err)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, want, next)
			})
		}
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	for _, st := range model.AllStates {
		if !st.IsTerminal() {
			continue
		}
		for _, op := range allLifecycleOps {
			_, err := nextState(st, op)
			assert.ErrorIs(t, err, ErrInvalidState, "%s/%s", st, op)
		}
	}
}

func TestNextStateRejectsUnknownState(t *testing.T) {
	_, err := nextState(model.PetitionState("ARCHIVED"), opSign)
	assert.ErrorIs(t, err, ErrInvalidState)
}
