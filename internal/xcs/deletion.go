package xcs

import "sort"

// deleteOne removes one micro-classifier while [P] is over budget.
func (s *System) deleteOne() {
	if s.pop.Size() <= s.params.MaxPopulation {
		return
	}
	var victim Handle
	switch s.params.Deletion {
	case DeleteRandom, DeleteRandomWithAccuracy:
		victim = s.randomVictim()
	default:
		victim = s.rouletteVictim()
	}
	removed := s.pop.Decrement(victim)
	if removed {
		s.purge(victim)
	}
	s.obs.Deleted(removed)
}

// rouletteVictim draws proportionally to action set size times numerosity,
// inflating the vote of experienced rules whose fitness falls below a
// fraction of the population average.
func (s *System) rouletteVictim() Handle {
	handles := s.pop.Handles()
	var fitSum float64
	for _, h := range handles {
		fitSum += s.pop.Get(h).Fitness
	}
	avgFitness := fitSum / float64(s.pop.Size())

	cum := make([]float64, len(handles))
	var votes float64
	for i, h := range handles {
		cl := s.pop.Get(h)
		vote := cl.SetSize * float64(cl.Numerosity)
		if s.params.Deletion.WithAccuracy() {
			f := cl.Fitness / float64(cl.Numerosity)
			if float64(cl.Experience) > s.params.ThetaDel && f > 0 && f < s.params.DeltaDel*avgFitness {
				vote *= avgFitness / f
			}
		}
		votes += vote
		cum[i] = votes
	}
	r := votes * s.rng.Float64()
	i := sort.SearchFloat64s(cum, r)
	if i >= len(handles) {
		i = len(handles) - 1
	}
	return handles[i]
}

// randomVictim picks a micro-classifier uniformly.
func (s *System) randomVictim() Handle {
	handles := s.pop.Handles()
	r := s.rng.Dice(s.pop.Size())
	cum := 0
	for _, h := range handles {
		cum += s.pop.Get(h).Numerosity
		if r < cum {
			return h
		}
	}
	return handles[len(handles)-1]
}
