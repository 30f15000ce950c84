package scoring

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/refbox/internal/domain/model"
)

// fill answers every mission of the catalog with its default value.
func fill(c *Catalog) map[string][]*model.ClauseValue {
	out := make(map[string][]*model.ClauseValue, len(c.Missions))
	for _, m := range c.Missions {
		clauses := make([]*model.ClauseValue, len(m.Clauses))
		for i, cl := range m.Clauses {
			v := *cl.Default
			clauses[i] = &v
		}
		out[m.ID] = clauses
	}
	return out
}

func set(missions map[string][]*model.ClauseValue, missionID string, index int, v *model.ClauseValue) {
	missions[missionID][index] = v
}

func TestCatalogScore(t *testing.T) {
	convey.Convey("Given the default season catalog", t, func() {
		catalog := DefaultCatalog()

		convey.Convey("When scoring a fully defaulted scoresheet", func() {
			missions := fill(catalog)
			result := catalog.Score(missions)

			convey.Convey("Then it should be complete and clean", func() {
				convey.So(result.Complete(), convey.ShouldBeTrue)
				convey.So(result.Clean(), convey.ShouldBeTrue)
			})

			convey.Convey("And only defaults that award points should count", func() {
				// m04 second clause defaults true (10) and precision
				// tokens default to all six remaining (50).
				convey.So(result.Score, convey.ShouldEqual, 60)
			})
		})

		convey.Convey("When a clause is still unanswered", func() {
			missions := fill(catalog)
			set(missions, "m03", 0, nil)
			result := catalog.Score(missions)

			convey.Convey("Then the mission is incomplete, not invalid", func() {
				convey.So(result.Missions["m03"].Complete, convey.ShouldBeFalse)
				convey.So(result.Missions["m03"].Errors, convey.ShouldBeEmpty)
				convey.So(result.Complete(), convey.ShouldBeFalse)
			})

			convey.Convey("And the rest still scores", func() {
				convey.So(result.Score, convey.ShouldEqual, 60)
			})
		})

		convey.Convey("When scoring the equipment inspection bonus", func() {
			missions := fill(catalog)
			set(missions, "eib", 0, model.BoolValue(true))
			result := catalog.Score(missions)
			convey.So(result.Missions["eib"].Points, convey.ShouldEqual, 20)
		})

		convey.Convey("When a dependent clause pair is impossible", func() {
			missions := fill(catalog)
			// Second m03 clause without the first cannot happen on the
			// field.
			set(missions, "m03", 0, model.BoolValue(false))
			set(missions, "m03", 1, model.BoolValue(true))
			result := catalog.Score(missions)

			convey.Convey("Then the mission is complete but invalid", func() {
				mr := result.Missions["m03"]
				convey.So(mr.Complete, convey.ShouldBeTrue)
				convey.So(mr.Valid, convey.ShouldBeFalse)
				convey.So(mr.Points, convey.ShouldEqual, 0)
				convey.So(result.Clean(), convey.ShouldBeFalse)
			})

			convey.Convey("And the error names the mission rule", func() {
				convey.So(result.Errors, convey.ShouldHaveLength, 1)
				convey.So(result.Errors[0].MissionID, convey.ShouldEqual, "m03")
				convey.So(result.Errors[0].Code, convey.ShouldEqual, "m03-e1")
			})
		})

		convey.Convey("When both dependent clauses hold", func() {
			missions := fill(catalog)
			set(missions, "m03", 0, model.BoolValue(true))
			set(missions, "m03", 1, model.BoolValue(true))
			result := catalog.Score(missions)
			convey.So(result.Missions["m03"].Points, convey.ShouldEqual, 40)
		})

		convey.Convey("When the forum holds an item its mission contradicts", func() {
			missions := fill(catalog)
			// Brush in the forum while m01 says it was never picked up.
			set(missions, "m14", 0, model.EnumMultiValue("brush"))
			set(missions, "m01", 1, model.BoolValue(false))
			result := catalog.Score(missions)

			convey.Convey("Then the cross-mission validator fires", func() {
				convey.So(result.Clean(), convey.ShouldBeFalse)
				found := false
				for _, e := range result.Errors {
					if e.Code == "e1" {
						found = true
					}
				}
				convey.So(found, convey.ShouldBeTrue)
			})

			convey.Convey("And the referenced mission is marked invalid", func() {
				convey.So(result.Missions["m01"].Valid, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the forum rule's referenced mission is incomplete", func() {
			missions := fill(catalog)
			set(missions, "m14", 0, model.EnumMultiValue("brush"))
			set(missions, "m01", 1, nil)
			result := catalog.Score(missions)

			convey.Convey("Then the validator stays quiet", func() {
				convey.So(result.Errors, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When none shares the forum with another item", func() {
			missions := fill(catalog)
			set(missions, "m14", 0, model.EnumMultiValue("none", "millstone"))
			result := catalog.Score(missions)
			convey.So(result.Missions["m14"].Valid, convey.ShouldBeFalse)
			convey.So(result.Missions["m14"].Errors[0].Code, convey.ShouldEqual, "m14-e1")
		})

		convey.Convey("When forum items each earn five points", func() {
			missions := fill(catalog)
			set(missions, "m14", 0, model.EnumMultiValue("topsoil", "minecart"))
			result := catalog.Score(missions)
			convey.So(result.Missions["m14"].Points, convey.ShouldEqual, 10)
		})

		convey.Convey("When scoring precision tokens", func() {
			missions := fill(catalog)
			cases := map[string]int{
				"0": 0, "1": 10, "2": 15, "3": 25, "4": 35, "5": 50, "6": 50,
			}
			for option, points := range cases {
				set(missions, "pt", 0, model.EnumValue(option))
				result := catalog.Score(missions)
				convey.So(result.Missions["pt"].Points, convey.ShouldEqual, points)
			}
		})

		convey.Convey("When scoring is repeated on the same input", func() {
			missions := fill(catalog)
			set(missions, "m02", 0, model.EnumValue("3"))
			first := catalog.Score(missions)
			second := catalog.Score(missions)
			convey.So(second.Score, convey.ShouldEqual, first.Score)
			convey.So(second.Score, convey.ShouldEqual, 90)
		})
	})
}

func TestValidateClause(t *testing.T) {
	convey.Convey("Given clause validation", t, func() {
		convey.Convey("A nil value always clears the clause", func() {
			err := ValidateClause(boolClause(false), nil)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("A kind mismatch is rejected", func() {
			err := ValidateClause(boolClause(false), model.EnumValue("1"))
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "expects boolean")
		})

		convey.Convey("An enum option outside the list is rejected", func() {
			err := ValidateClause(enumClause("0", "0", "1", "2"), model.EnumValue("7"))
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Multi-select values on a single-select clause are rejected", func() {
			err := ValidateClause(enumClause("0", "0", "1"), model.EnumMultiValue("0", "1"))
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Multi-select accepts any subset of its options", func() {
			clause := multiEnumClause("none", forumItems...)
			err := ValidateClause(clause, model.EnumMultiValue("brush", "topsoil"))
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("Numbers are bounds checked", func() {
			clause := Clause{Kind: model.ClauseNumber, Min: 0, Max: 9}
			convey.So(ValidateClause(clause, model.NumberValue(9)), convey.ShouldBeNil)
			convey.So(ValidateClause(clause, model.NumberValue(10)), convey.ShouldNotBeNil)
		})
	})
}

func TestEmptyMissions(t *testing.T) {
	convey.Convey("Given an empty scoresheet layout", t, func() {
		catalog := DefaultCatalog()
		missions := catalog.EmptyMissions()

		convey.Convey("Every mission has one nil slot per clause", func() {
			for _, m := range catalog.Missions {
				convey.So(missions[m.ID], convey.ShouldHaveLength, len(m.Clauses))
				for _, v := range missions[m.ID] {
					convey.So(v, convey.ShouldBeNil)
				}
			}
		})

		convey.Convey("Scoring it yields zero and incomplete", func() {
			result := catalog.Score(missions)
			convey.So(result.Score, convey.ShouldEqual, 0)
			convey.So(result.Complete(), convey.ShouldBeFalse)
		})
	})
}
