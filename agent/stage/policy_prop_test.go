package stage

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allStages = []Stage{
	Greeting, Discovery, Presentation, ObjectionHandling,
	Negotiation, Closing, FollowUp,
}

func genStage() gopter.Gen {
	vals := make([]interface{}, len(allStages))
	for i, st := range allStages {
		vals[i] = st
	}
	return gen.OneConstOf(vals...)
}

func TestTransitionPolicyProperties(t *testing.T) {
	t.Parallel()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 300
	properties := gopter.NewProperties(params)

	properties.Property("forward moves always succeed", prop.ForAll(
		func(from, to Stage) bool {
			if order[to] <= order[from] {
				return true // not a forward move, vacuously holds
			}
			m := NewMachine()
			if from != Greeting {
				if _, err := m.Transition("c", from); err != nil {
					return false
				}
			}
			_, err := m.Transition("c", to)
			return err == nil
		},
		genStage(), genStage(),
	))

	properties.Property("backward moves succeed only on the re-qualification edges", prop.ForAll(
		func(from, to Stage) bool {
			if order[to] >= order[from] {
				return true
			}
			m := NewMachine()
			if from != Greeting {
				if _, err := m.Transition("c", from); err != nil {
					return true // unreachable start state for this pair
				}
			}
			_, err := m.Transition("c", to)
			wantOK := (from == Negotiation || from == ObjectionHandling) &&
				(to == Discovery || to == Presentation)
			return (err == nil) == wantOK
		},
		genStage(), genStage(),
	))

	properties.Property("rejected transitions leave the stage unchanged", prop.ForAll(
		func(from, to Stage) bool {
			m := NewMachine()
			if from != Greeting {
				if _, err := m.Transition("c", from); err != nil {
					return true
				}
			}
			before := m.Current("c")
			if _, err := m.Transition("c", to); err != nil {
				return m.Current("c") == before
			}
			return true
		},
		genStage(), genStage(),
	))

	properties.TestingRun(t)
}
