package xcs

import "math"

// updateSet applies one reinforcement step with target payoff P to every
// rule of set, then refits fitness and, when enabled, runs action set
// subsumption.
func (s *System) updateSet(payoff float64, set []Handle) {
	if len(set) == 0 {
		return
	}
	var setSize int
	var fitnessSum float64
	for _, h := range set {
		cl := s.pop.Get(h)
		cl.Experience++
		setSize += cl.Numerosity
		fitnessSum += cl.Fitness
	}
	for _, h := range set {
		cl := s.pop.Get(h)
		rate := s.rate(cl)
		if s.params.UpdateErrorFirst {
			s.updateError(cl, payoff, rate)
			s.updatePrediction(cl, payoff, rate, fitnessSum)
		} else {
			s.updatePrediction(cl, payoff, rate, fitnessSum)
			s.updateError(cl, payoff, rate)
		}
		cl.SetSize += rate * (float64(setSize) - cl.SetSize)
	}
	s.updateFitness(set)
	if s.params.ASSubsumption {
		s.actionSetSubsumption(set)
	}
}

// rate is the MAM learning rate: 1/experience while experience is at most
// 1/beta, beta afterwards.
func (s *System) rate(cl *Classifier) float64 {
	beta := s.params.LearningRate
	if !s.params.UseMAM || float64(cl.Experience) > 1/beta {
		return beta
	}
	return 1 / float64(cl.Experience)
}

// updatePrediction moves the prediction towards payoff. The gradient
// variant always uses the fixed learning rate scaled by the rule's share of
// the set's fitness, also while MAM is on.
func (s *System) updatePrediction(cl *Classifier, payoff, rate, fitnessSum float64) {
	delta := payoff - cl.Prediction
	if s.params.GradientDescent {
		if fitnessSum > 0 {
			cl.Prediction += s.params.LearningRate * delta * cl.Fitness / fitnessSum
		}
		return
	}
	cl.Prediction += rate * delta
}

func (s *System) updateError(cl *Classifier, payoff, rate float64) {
	cl.Error += rate * (math.Abs(payoff-cl.Prediction) - cl.Error)
}

// updateFitness moves each fitness towards the rule's share of the set's
// numerosity-weighted accuracy.
func (s *System) updateFitness(set []Handle) {
	accuracy := make([]float64, len(set))
	var sum float64
	for i, h := range set {
		cl := s.pop.Get(h)
		k := 1.0
		if cl.Error >= s.params.EpsilonZero {
			k = s.params.Alpha * math.Pow(cl.Error/s.params.EpsilonZero, -s.params.Vi)
		}
		accuracy[i] = k * float64(cl.Numerosity)
		sum += accuracy[i]
	}
	if sum <= 0 {
		return
	}
	for i, h := range set {
		cl := s.pop.Get(h)
		cl.Fitness += s.params.LearningRate * (accuracy[i]/sum - cl.Fitness)
	}
}
