package scoring

import (
	"github.com/okian/refbox/internal/domain/model"
)

// Mission rule codes for the default season.
const (
	codeM03PartialLift  = "m03-e1"
	codeM11PartialSpin  = "m11-e1"
	codeM14NoneWithItem = "m14-e1"
	codeE1BrushForum    = "e1"
	codeE3ScalePanForum = "e3"
	codeE4OreForum      = "e4"
	codeE5Millstone     = "e5"
	codeE6Precious      = "e6"
)

// forumItems are the artifacts that can be placed in the forum area (m14).
var forumItems = []string{
	"none",
	"brush",
	"minecart",
	"scale-pan",
	"topsoil",
	"ore-with-fossilized-artifact",
	"precious-artifact",
	"millstone",
}

func boolClause(def bool) Clause {
	return Clause{Kind: model.ClauseBoolean, Default: model.BoolValue(def)}
}

func enumClause(def string, options ...string) Clause {
	return Clause{Kind: model.ClauseEnum, Options: options, Default: model.EnumValue(def)}
}

func multiEnumClause(def string, options ...string) Clause {
	return Clause{
		Kind: model.ClauseEnum, Options: options, MultiSelect: true,
		Default: model.EnumMultiValue(def),
	}
}

// stepEnum maps enum options "0".."n" to option-index * step points.
func stepEnum(step int) func(values []model.ClauseValue) (int, error) {
	return func(values []model.ClauseValue) (int, error) {
		return enumIndex(values[0]) * step, nil
	}
}

// enumIndex parses numeric enum options. The catalog only uses it on
// clauses whose options are "0".."n", so failure cannot happen for values
// that passed ValidateClause.
func enumIndex(v model.ClauseValue) int {
	n := 0
	for _, r := range v.Option {
		n = n*10 + int(r-'0')
	}
	return n
}

// twoBools awards a points for the first clause and b for the second.
func twoBools(a, b int) func(values []model.ClauseValue) (int, error) {
	return func(values []model.ClauseValue) (int, error) {
		points := 0
		if values[0].Bool {
			points += a
		}
		if values[1].Bool {
			points += b
		}
		return points, nil
	}
}

// dependentBools awards full points only when both clauses hold; the second
// clause without the first is physically impossible and raises code.
func dependentBools(partial, full int, missionID, code string) func(values []model.ClauseValue) (int, error) {
	return func(values []model.ClauseValue) (int, error) {
		if values[1].Bool {
			if !values[0].Bool {
				return 0, NewError(missionID, code)
			}
			return full, nil
		}
		if values[0].Bool {
			return partial, nil
		}
		return 0, nil
	}
}

// forumRequires fires errCode when item sits in the forum while the
// referenced mission clause contradicts it. Incomplete missions never fire.
func forumRequires(item, missionID string, errCode string, satisfied func(v model.ClauseValue) bool) Validator {
	return func(missions map[string][]*model.ClauseValue) error {
		forum := clauseAt(missions, "m14", 0)
		ref := clauseAt(missions, missionID, clauseIndexForForumRule(missionID))
		if forum == nil || ref == nil {
			return nil
		}
		if !containsOption(forum.Options, item) {
			return nil
		}
		if !satisfied(*ref) {
			return NewError(missionID, errCode)
		}
		return nil
	}
}

// clauseIndexForForumRule returns which clause of the referenced mission the
// forum rule inspects. Only m01 and m10 check their second clause.
func clauseIndexForForumRule(missionID string) int {
	if missionID == "m01" || missionID == "m10" {
		return 1
	}
	return 0
}

func clauseAt(missions map[string][]*model.ClauseValue, id string, idx int) *model.ClauseValue {
	clauses := missions[id]
	if idx >= len(clauses) {
		return nil
	}
	return clauses[idx]
}

func containsOption(options []string, item string) bool {
	for _, o := range options {
		if o == item {
			return true
		}
	}
	return false
}

// DefaultCatalog is the season scoresheet schema: equipment inspection
// bonus, missions m01-m15 and precision tokens.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version: "2025-11-23",
		Missions: []Mission{
			{
				ID:      "eib",
				Clauses: []Clause{boolClause(false)},
				Calculate: func(values []model.ClauseValue) (int, error) {
					if values[0].Bool {
						return 20, nil
					}
					return 0, nil
				},
			},
			{
				ID: "m01",
				Clauses: []Clause{
					enumClause("0", "0", "1", "2"),
					boolClause(false),
				},
				NoEquipment: true,
				Calculate: func(values []model.ClauseValue) (int, error) {
					points := enumIndex(values[0]) * 10
					if values[1].Bool {
						points += 10
					}
					return points, nil
				},
			},
			{
				ID:        "m02",
				Clauses:   []Clause{enumClause("0", "0", "1", "2", "3")},
				Calculate: stepEnum(10),
			},
			{
				ID:        "m03",
				Clauses:   []Clause{boolClause(false), boolClause(false)},
				Calculate: dependentBools(30, 40, "m03", codeM03PartialLift),
			},
			{
				ID:          "m04",
				Clauses:     []Clause{boolClause(false), boolClause(true)},
				NoEquipment: true,
				Calculate:   twoBools(30, 10),
			},
			{
				ID:          "m05",
				Clauses:     []Clause{boolClause(false)},
				NoEquipment: true,
				Calculate: func(values []model.ClauseValue) (int, error) {
					if values[0].Bool {
						return 30, nil
					}
					return 0, nil
				},
			},
			{
				ID:        "m06",
				Clauses:   []Clause{enumClause("0", "0", "1", "2", "3")},
				Calculate: stepEnum(10),
			},
			{
				ID:      "m07",
				Clauses: []Clause{boolClause(false)},
				Calculate: func(values []model.ClauseValue) (int, error) {
					if values[0].Bool {
						return 30, nil
					}
					return 0, nil
				},
			},
			{
				ID:        "m08",
				Clauses:   []Clause{enumClause("0", "0", "1", "2", "3")},
				Calculate: stepEnum(10),
			},
			{
				ID:          "m09",
				Clauses:     []Clause{boolClause(false), boolClause(false)},
				NoEquipment: true,
				Calculate:   twoBools(20, 10),
			},
			{
				ID:        "m10",
				Clauses:   []Clause{boolClause(false), boolClause(false)},
				Calculate: twoBools(20, 10),
			},
			{
				ID:          "m11",
				Clauses:     []Clause{boolClause(false), boolClause(false)},
				NoEquipment: true,
				Calculate:   dependentBools(20, 30, "m11", codeM11PartialSpin),
			},
			{
				ID:          "m12",
				Clauses:     []Clause{boolClause(false), boolClause(false)},
				NoEquipment: true,
				Calculate:   twoBools(20, 10),
			},
			{
				ID:          "m13",
				Clauses:     []Clause{boolClause(false)},
				NoEquipment: true,
				Calculate: func(values []model.ClauseValue) (int, error) {
					if values[0].Bool {
						return 30, nil
					}
					return 0, nil
				},
			},
			{
				ID:          "m14",
				Clauses:     []Clause{multiEnumClause("none", forumItems...)},
				NoEquipment: true,
				Calculate: func(values []model.ClauseValue) (int, error) {
					selected := values[0].Options
					if containsOption(selected, "none") {
						if len(selected) > 1 {
							return 0, NewError("m14", codeM14NoneWithItem)
						}
						return 0, nil
					}
					return len(selected) * 5, nil
				},
			},
			{
				ID:        "m15",
				Clauses:   []Clause{enumClause("0", "0", "1", "2", "3")},
				Calculate: stepEnum(10),
			},
			{
				ID:      "pt",
				Clauses: []Clause{enumClause("6", "0", "1", "2", "3", "4", "5", "6")},
				Calculate: func(values []model.ClauseValue) (int, error) {
					switch enumIndex(values[0]) {
					case 0:
						return 0, nil
					case 1:
						return 10, nil
					case 2:
						return 15, nil
					case 3:
						return 25, nil
					case 4:
						return 35, nil
					default:
						return 50, nil
					}
				},
			},
		},
		Validators: []Validator{
			forumRequires("brush", "m01", codeE1BrushForum,
				func(v model.ClauseValue) bool { return v.Bool }),
			forumRequires("scale-pan", "m10", codeE3ScalePanForum,
				func(v model.ClauseValue) bool { return v.Bool }),
			forumRequires("ore-with-fossilized-artifact", "m06", codeE4OreForum,
				func(v model.ClauseValue) bool { return enumIndex(v) != 0 }),
			forumRequires("millstone", "m07", codeE5Millstone,
				func(v model.ClauseValue) bool { return v.Bool }),
			forumRequires("precious-artifact", "m04", codeE6Precious,
				func(v model.ClauseValue) bool { return v.Bool }),
		},
	}
}

// EmptyMissions returns the all-null clause layout for a cleared scoresheet.
func (c *Catalog) EmptyMissions() map[string][]*model.ClauseValue {
	out := make(map[string][]*model.ClauseValue, len(c.Missions))
	for _, m := range c.Missions {
		out[m.ID] = make([]*model.ClauseValue, len(m.Clauses))
	}
	return out
}
