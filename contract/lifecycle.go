package contract

import (
	"petitionledger/model"
)

// lifecycleOp is the closed set of operations that touch a petition's lifecycle state.
type lifecycleOp string

const (
	opCreate          lifecycleOp = "create"
	opCreatePublished lifecycleOp = "createPublished"
	opPublish         lifecycleOp = "publish"
	opUpdateField     lifecycleOp = "updateField"
	opExtendEndDate   lifecycleOp = "extendEndDate"
	opSign            lifecycleOp = "sign"
	opWithdraw        lifecycleOp = "withdraw"
	opComplete        lifecycleOp = "complete"
	opCancel          lifecycleOp = "cancel"
	opDeleteDraft     lifecycleOp = "deleteDraft"
)

var allLifecycleOps = []lifecycleOp{
	opCreate, opCreatePublished, opPublish, opUpdateField, opExtendEndDate,
	opSign, opWithdraw, opComplete, opCancel, opDeleteDraft,
}

// stateAbsent stands for "no petition record", the source of create and the target of deleteDraft.
const stateAbsent model.PetitionState = ""

// nextState is the transition function of the petition state machine. It is total: every
// (state, op) pair either yields the resulting state or an INVALID_STATE error.
func nextState(current model.PetitionState, op lifecycleOp) (model.PetitionState, error) {
	switch current {
	case stateAbsent:
		switch op {
		case opCreate:
			return model.StateDraft, nil
		case opCreatePublished:
			return model.StatePublished, nil
		}
	case model.StateDraft:
		switch op {
		case opPublish:
			return model.StatePublished, nil
		case opUpdateField:
			return model.StateDraft, nil
		case opDeleteDraft:
			return stateAbsent, nil
		}
	case model.StatePublished:
		switch op {
		case opUpdateField, opExtendEndDate, opSign, opWithdraw:
			return model.StatePublished, nil
		case opComplete:
			return model.StateCompleted, nil
		case opCancel:
			return model.StateCancelled, nil
		}
	case model.StateCompleted, model.StateCancelled:
		return current, invalidState("petition is %s; no further changes are accepted (operation '%s')", current, op)
	}
	if current == stateAbsent {
		return current, invalidState("operation '%s' requires an existing petition", op)
	}
	return current, invalidState("operation '%s' is not permitted while petition is %s", op, current)
}
