package xcs

// selectAction picks an action among those present in the prediction array.
func (s *System) selectAction(policy Exploration) int {
	switch policy {
	case ExploreDeterministic:
		return s.bestAction()
	case ExploreEpsilonGreedy:
		if s.rng.Float64() < s.params.EpsilonGreedy {
			return s.randomAction()
		}
		return s.bestAction()
	case ExploreProportional:
		return s.proportionalAction()
	default:
		return s.randomAction()
	}
}

// bestAction scans the available actions from a random offset and keeps
// the first action with the highest payoff.
func (s *System) bestAction() int {
	avail := s.pa.Available()
	n := len(avail)
	start := s.rng.Dice(n)
	best := avail[start]
	for i := 1; i < n; i++ {
		a := avail[(start+i)%n]
		if s.pa.Slots[best].Payoff < s.pa.Slots[a].Payoff {
			best = a
		}
	}
	return best
}

func (s *System) randomAction() int {
	avail := s.pa.Available()
	return avail[s.rng.Dice(len(avail))]
}

// proportionalAction spins a roulette wheel over payoffs. Without positive
// payoff mass it falls back to a uniform choice.
func (s *System) proportionalAction() int {
	avail := s.pa.Available()
	var sum float64
	for _, a := range avail {
		if p := s.pa.Slots[a].Payoff; p > 0 {
			sum += p
		}
	}
	if sum <= 0 {
		return s.randomAction()
	}
	r := s.rng.Float64() * sum
	var cum float64
	for _, a := range avail {
		if p := s.pa.Slots[a].Payoff; p > 0 {
			cum += p
		}
		if r < cum {
			return a
		}
	}
	return avail[len(avail)-1]
}

// buildActionSet keeps the match set rules advocating action and shuffles
// them.
func (s *System) buildActionSet(action int) {
	s.action = s.action[:0]
	for _, h := range s.match {
		if s.pop.Get(h).Action.Index() == action {
			s.action = append(s.action, h)
		}
	}
	for i := len(s.action) - 1; i > 0; i-- {
		j := s.rng.Dice(i + 1)
		s.action[i], s.action[j] = s.action[j], s.action[i]
	}
}
