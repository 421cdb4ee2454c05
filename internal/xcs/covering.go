package xcs

import (
	"go.uber.org/zap"

	"xcsgo/internal/rules"
)

// matchAndCover builds [M] for state and covers until it satisfies the
// configured covering strategy.
func (s *System) matchAndCover(state rules.State) {
	s.buildMatchSet(state)
	switch s.params.Covering {
	case CoverStandard:
		s.coverStandard(state)
	default:
		s.coverActions(state)
	}
}

// buildMatchSet collects the rules matching state into [M] and returns the
// number of micro-classifiers in it.
func (s *System) buildMatchSet(state rules.State) int {
	s.match = s.match[:0]
	num := 0
	s.pop.Each(func(h Handle, cl *Classifier) {
		if cl.Match(state) {
			s.match = append(s.match, h)
			num += cl.Numerosity
		}
	})
	return num
}

// coverActions adds a matching rule for each missing action, in action
// order, until [M] advocates at least CoveringThreshold actions.
func (s *System) coverActions(state rules.State) {
	for round := 0; ; round++ {
		present := make([]bool, s.acts.Count())
		covered := 0
		for _, h := range s.match {
			a := s.pop.Get(h).Action.Index()
			if !present[a] {
				present[a] = true
				covered++
			}
		}
		if covered >= s.params.CoveringThreshold {
			return
		}
		if round >= s.params.MaxPopulation {
			s.log.Warn("action covering did not converge",
				zap.Int("rounds", round),
				zap.Int("covered_actions", covered),
				zap.Int("population_size", s.pop.Size()),
			)
			return
		}
		created := 0
		for a := 0; a < s.acts.Count() && covered < s.params.CoveringThreshold; a++ {
			if present[a] {
				continue
			}
			cl := s.newClassifier(s.conds.Cover(state, s.rng), s.acts.Action(a), s.params.CoverAverageInit)
			s.pop.Insert(cl, s.totalSteps)
			s.counters.Covering++
			present[a] = true
			covered++
			created++
			s.deleteOne()
		}
		s.obs.Covered(created)
		s.buildMatchSet(state)
	}
}

// coverStandard adds one matching rule with a random action while [M] is
// empty or its predictions fall below a fraction of the population average.
// A zero fraction covers empty match sets only.
func (s *System) coverStandard(state rules.State) {
	for round := 0; s.needsCovering(); round++ {
		if round >= s.params.MaxPopulation {
			s.log.Warn("covering did not converge",
				zap.Int("rounds", round),
				zap.Int("match_set_size", len(s.match)),
				zap.Int("population_size", s.pop.Size()),
			)
			return
		}
		cl := s.newClassifier(s.conds.Cover(state, s.rng), s.acts.Random(s.rng), s.params.CoverAverageInit)
		s.pop.Insert(cl, s.totalSteps)
		s.counters.Covering++
		s.obs.Covered(1)
		s.deleteOne()
		s.buildMatchSet(state)
	}
}

func (s *System) needsCovering() bool {
	if len(s.match) == 0 {
		return true
	}
	var predSum, fitSum, numPred float64
	num := 0
	for _, h := range s.match {
		cl := s.pop.Get(h)
		predSum += cl.Prediction * cl.Fitness
		fitSum += cl.Fitness
		numPred += cl.Prediction * float64(cl.Numerosity)
		num += cl.Numerosity
	}
	matchAvg := numPred / float64(num)
	if fitSum > 0 {
		matchAvg = predSum / fitSum
	}
	var popPred float64
	s.pop.Each(func(_ Handle, cl *Classifier) {
		popPred += cl.Prediction * float64(cl.Numerosity)
	})
	popAvg := popPred / float64(s.pop.Size())
	return s.params.CoveringFraction > 0 && matchAvg <= s.params.CoveringFraction*popAvg
}
