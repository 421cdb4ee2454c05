package xcs

// actionSetSubsumption lets the most general experienced and accurate rule
// of set absorb every rule it is more general than.
func (s *System) actionSetSubsumption(set []Handle) {
	most := Handle(-1)
	for _, h := range set {
		cl := s.pop.Get(h)
		if cl == nil || !cl.CouldSubsume(s.params.EpsilonZero, s.params.ThetaASSub) {
			continue
		}
		if most < 0 || cl.Subsumes(s.pop.Get(most)) {
			most = h
		}
	}
	if most < 0 {
		return
	}
	survivor := s.pop.Get(most)
	var victims []Handle
	for _, h := range set {
		if h == most {
			continue
		}
		if cl := s.pop.Get(h); cl != nil && survivor.Condition.MoreGeneral(cl.Condition) {
			victims = append(victims, h)
		}
	}
	for _, h := range victims {
		s.pop.Absorb(most, h)
		s.purge(h)
		s.counters.Subsumption++
	}
	if len(victims) > 0 {
		s.obs.Subsumed(len(victims))
	}
}

// subsumeOffspring tries to absorb an offspring into a parent and then,
// with GAA subsumption, into the first eligible rule of the action set. It
// reports whether the offspring was absorbed.
func (s *System) subsumeOffspring(child *Classifier, parents [2]Handle, set []Handle) bool {
	candidates := parents[:]
	if s.params.GAASubsumption {
		candidates = append(candidates, set...)
	}
	for _, h := range candidates {
		p := s.pop.Get(h)
		if p != nil && p.CouldSubsume(s.params.EpsilonZero, s.params.ThetaGASub) && p.Subsumes(child) {
			s.pop.AddNumerosity(h, 1)
			s.counters.Subsumption++
			s.obs.Subsumed(1)
			return true
		}
	}
	return false
}
