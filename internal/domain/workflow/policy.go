// Package workflow owns the scoresheet and rubric review state machines and
// the authorization policy for their transitions.
package workflow

import (
	"github.com/okian/refbox/internal/domain/model"
)

// CanTransition is the single authorization policy for status transitions.
// The controllers consult it authoritatively; clients may consult it for
// optimistic UI hints, but the controller's answer is the one that counts.
func CanTransition(caller model.Caller, resource model.ResourceType, category model.JudgingCategory, from, to string) bool {
	switch resource {
	case model.ResourceScoresheet:
		return canTransitionScoresheet(caller, model.ScoresheetStatus(from), model.ScoresheetStatus(to))
	case model.ResourceRubric:
		return canTransitionRubric(caller, category, model.RubricStatus(from), model.RubricStatus(to))
	default:
		return false
	}
}

func canTransitionScoresheet(caller model.Caller, from, to model.ScoresheetStatus) bool {
	refereeRole := caller.Role == model.RoleReferee || caller.Role == model.RoleHeadReferee
	switch {
	case from == model.ScoresheetEmpty && to == model.ScoresheetInProgress,
		from == model.ScoresheetInProgress && to == model.ScoresheetCompleted,
		from == model.ScoresheetCompleted && to == model.ScoresheetWaitingForGP,
		from == model.ScoresheetWaitingForGP && to == model.ScoresheetReady,
		from == model.ScoresheetReady && to == model.ScoresheetSubmitted:
		return refereeRole
	case from == model.ScoresheetReady && to == model.ScoresheetWaitingForGP:
		// Stepping back out of the signing stage is a head-referee call.
		return caller.Role == model.RoleHeadReferee
	case from == model.ScoresheetSubmitted && to == model.ScoresheetEmpty:
		return caller.Role == model.RoleHeadReferee
	default:
		return false
	}
}

func canTransitionRubric(caller model.Caller, category model.JudgingCategory, from, to model.RubricStatus) bool {
	leadForCategory := caller.Role == model.RoleLeadJudge && caller.Scope.Category == category
	switch {
	case from == model.RubricDraft && to == model.RubricLocked,
		from == model.RubricLocked && to == model.RubricDraft:
		return caller.Role == model.RoleJudgeAdvisor || leadForCategory
	case from == model.RubricLocked && to == model.RubricApproved:
		return caller.Role == model.RoleJudgeAdvisor
	default:
		return false
	}
}

// canEditScoresheet reports whether the caller may write scoresheet data in
// the given status. Submitted and waiting-for-gp sheets only accept writes
// from a head referee carrying an explicit override.
func canEditScoresheet(caller model.Caller, status model.ScoresheetStatus, override bool) bool {
	if caller.Role != model.RoleReferee && caller.Role != model.RoleHeadReferee {
		return false
	}
	if status == model.ScoresheetSubmitted || status == model.ScoresheetWaitingForGP {
		return caller.Role == model.RoleHeadReferee && override
	}
	return true
}

// canEditRubric reports whether the caller may write rubric data. Rubrics
// only accept field mutations while draft; locked and approved rubrics must
// be reset first.
func canEditRubric(caller model.Caller, category model.JudgingCategory, status model.RubricStatus) bool {
	if status != model.RubricDraft {
		return false
	}
	switch caller.Role {
	case model.RoleJudge, model.RoleJudgeAdvisor:
		return true
	case model.RoleLeadJudge:
		return caller.Scope.Category == category
	default:
		return false
	}
}

// canEscalate reports whether the caller may flip the escalation flag in the
// given direction. Referees may only escalate; de-escalation is restricted
// to the head referee.
func canEscalate(caller model.Caller, escalate bool) bool {
	if caller.Role == model.RoleHeadReferee {
		return true
	}
	return caller.Role == model.RoleReferee && escalate
}
