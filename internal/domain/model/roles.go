package model

// Role is a resolved tournament role attached to each mutation call.
// Authentication and session issuance happen upstream; the core only
// consumes the result.
type Role string

// Tournament roles.
const (
	RoleReferee         Role = "referee"
	RoleHeadReferee     Role = "head-referee"
	RoleScorekeeper     Role = "scorekeeper"
	RoleJudge           Role = "judge"
	RoleLeadJudge       Role = "lead-judge"
	RoleJudgeAdvisor    Role = "judge-advisor"
	RolePitAdmin        Role = "pit-admin"
	RoleAudienceDisplay Role = "audience-display"
)

// Scope narrows a role to part of the venue: a lead-judge owns one category,
// a referee one table, a judge one room. Empty fields mean unscoped.
type Scope struct {
	Category JudgingCategory `json:"category,omitempty"`
	Table    string          `json:"table,omitempty"`
	Room     string          `json:"room,omitempty"`
}

// Caller is the identity attached to a mutation request.
type Caller struct {
	Role  Role  `json:"role"`
	Scope Scope `json:"scope"`
}
