package xcs

import "xcsgo/internal/rules"

// needGA reports whether the average time stamp of set lags the step
// counter by at least theta GA. The GA only runs while exploring.
func (s *System) needGA(set []Handle, explore bool) bool {
	if !explore || len(set) == 0 {
		return false
	}
	var stamps float64
	num := 0
	for _, h := range set {
		cl := s.pop.Get(h)
		stamps += float64(cl.TimeStamp) * float64(cl.Numerosity)
		num += cl.Numerosity
	}
	return float64(s.totalSteps)-stamps/float64(num) >= s.params.ThetaGA
}

// geneticAlgorithm breeds two offspring from set. With condensation the
// parents are reproduced unchanged instead.
func (s *System) geneticAlgorithm(set []Handle, state rules.State, condensation bool) {
	for _, h := range set {
		s.pop.Get(h).TimeStamp = s.totalSteps
	}
	if condensation {
		s.condense(set)
		return
	}

	parents := s.selectParents(set)
	p1, p2 := s.pop.Get(parents[0]), s.pop.Get(parents[1])
	children := [2]Classifier{*p1, *p2}
	for i := range children {
		children[i].Numerosity = 1
		children[i].Experience = 1
	}

	if s.rng.Float64() < s.params.Crossover {
		c1, c2 := s.conds.Recombine(p1.Condition, p2.Condition, s.rng)
		children[0].Condition, children[1].Condition = c1, c2
		children[0].Action, children[1].Action = children[1].Action, children[0].Action
		for i := range children {
			if s.params.GAAverageInit {
				child := s.newClassifier(children[i].Condition, children[i].Action, true)
				child.Prediction = (p1.Prediction + p2.Prediction) / 2
				children[i] = child
				continue
			}
			children[i].Prediction = (p1.Prediction + p2.Prediction) / 2
			children[i].Error = (p1.Error + p2.Error) / 2
			children[i].Fitness = (p1.Fitness + p2.Fitness) / 2
			children[i].SetSize = (p1.SetSize + p2.SetSize) / 2
			children[i].TimeStamp = s.totalSteps
		}
	}

	for i := range children {
		children[i].Condition = s.conds.Mutate(children[i].Condition, s.params.Mutation, state, s.rng)
		children[i].Action = s.acts.Mutate(children[i].Action, s.params.Mutation, s.rng)
		children[i].Fitness *= 0.1
	}

	for i := range children {
		if s.params.GASubsumption && s.subsumeOffspring(&children[i], parents, set) {
			continue
		}
		s.pop.Insert(children[i], s.totalSteps)
	}
	s.deleteOne()
	s.deleteOne()
}

// condense copies two roulette-selected parents into [P] and deletes as
// many micro-classifiers. Tournament selection does not apply here.
func (s *System) condense(set []Handle) {
	parents := s.rouletteParents(set)
	id := s.pop.Get(parents[1]).ID

	s.pop.AddNumerosity(parents[0], 1)
	s.deleteOne()
	if cl := s.pop.Get(parents[1]); cl != nil && cl.ID == id {
		s.pop.AddNumerosity(parents[1], 1)
		s.deleteOne()
	}
}

func (s *System) selectParents(set []Handle) [2]Handle {
	if s.params.TournamentSelection {
		return [2]Handle{s.tournament(set), s.tournament(set)}
	}
	return s.rouletteParents(set)
}

// rouletteParents draws two fitness-proportional parents with a single
// cumulative scan over set.
func (s *System) rouletteParents(set []Handle) [2]Handle {
	var fitSum float64
	for _, h := range set {
		fitSum += s.pop.Get(h).Fitness
	}
	r1 := s.rng.Float64() * fitSum
	r2 := s.rng.Float64() * fitSum
	if r2 < r1 {
		r1, r2 = r2, r1
	}

	var out [2]Handle
	i := 0
	cum := s.pop.Get(set[0]).Fitness
	for k, r := range [2]float64{r1, r2} {
		for r >= cum && i < len(set)-1 {
			i++
			cum += s.pop.Get(set[i]).Fitness
		}
		out[k] = set[i]
	}
	return out
}

// tournament enters each micro-classifier with probability tournament size
// and returns the entrant with the highest per-micro fitness.
func (s *System) tournament(set []Handle) Handle {
	for {
		winner := Handle(-1)
		var best float64
		for _, h := range set {
			cl := s.pop.Get(h)
			f := cl.Fitness / float64(cl.Numerosity)
			if winner >= 0 && f <= best {
				continue
			}
			for n := 0; n < cl.Numerosity; n++ {
				if s.rng.Float64() < s.params.TournamentSize {
					winner, best = h, f
					break
				}
			}
		}
		if winner >= 0 {
			return winner
		}
	}
}
