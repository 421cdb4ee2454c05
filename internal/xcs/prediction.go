package xcs

// Slot aggregates the match set rules advocating one action.
type Slot struct {
	Payoff     float64
	FitnessSum float64
	Count      int
}

// PredictionArray holds one slot per action. It is rebuilt every step.
type PredictionArray struct {
	Slots     []Slot
	available []int
}

func newPredictionArray(actions int) PredictionArray {
	return PredictionArray{Slots: make([]Slot, actions)}
}

func (pa *PredictionArray) reset() {
	for i := range pa.Slots {
		pa.Slots[i] = Slot{}
	}
	pa.available = pa.available[:0]
}

// build aggregates the classifiers of a match set: the payoff of an action
// is the fitness weighted mean prediction of its advocates.
func (pa *PredictionArray) build(pop *Population, set []Handle) {
	pa.reset()
	for _, h := range set {
		cl := pop.Get(h)
		s := &pa.Slots[cl.Action.Index()]
		s.Payoff += cl.Prediction * cl.Fitness
		s.FitnessSum += cl.Fitness
		s.Count++
	}
	for a := range pa.Slots {
		s := &pa.Slots[a]
		if s.Count == 0 {
			continue
		}
		if s.FitnessSum != 0 {
			s.Payoff /= s.FitnessSum
		}
		pa.available = append(pa.available, a)
	}
}

// Available lists, in increasing order, the actions with at least one
// advocate.
func (pa *PredictionArray) Available() []int {
	return pa.available
}

// Payoffs returns the payoff of every action, zero for actions without
// advocates.
func (pa *PredictionArray) Payoffs() []float64 {
	out := make([]float64, len(pa.Slots))
	for a, s := range pa.Slots {
		out[a] = s.Payoff
	}
	return out
}

// MaxPayoff is the largest payoff among available actions.
func (pa *PredictionArray) MaxPayoff() float64 {
	if len(pa.available) == 0 {
		return 0
	}
	best := pa.Slots[pa.available[0]].Payoff
	for _, a := range pa.available[1:] {
		if pa.Slots[a].Payoff > best {
			best = pa.Slots[a].Payoff
		}
	}
	return best
}
