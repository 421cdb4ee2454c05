package xcs

type counters struct {
	GA          int
	Covering    int
	Subsumption int
}

// Statistics summarizes [P]. Averages other than fitness are weighted by
// numerosity; fitness is averaged per macro-classifier.
type Statistics struct {
	AveragePrediction float64
	AverageFitness    float64
	AverageError      float64
	AverageSetSize    float64
	AverageExperience float64
	AverageNumerosity float64
	AverageTimeStamp  float64
	SystemError       float64
	Size              int
	MacroSize         int
	GA                int
	Covering          int
	Subsumption       int
}

func (s *System) Statistics() Statistics {
	st := Statistics{
		SystemError: s.systemError,
		Size:        s.pop.Size(),
		MacroSize:   s.pop.MacroSize(),
		GA:          s.counters.GA,
		Covering:    s.counters.Covering,
		Subsumption: s.counters.Subsumption,
	}
	if st.MacroSize == 0 {
		return st
	}
	s.pop.Each(func(_ Handle, cl *Classifier) {
		n := float64(cl.Numerosity)
		st.AveragePrediction += cl.Prediction * n
		st.AverageFitness += cl.Fitness
		st.AverageError += cl.Error * n
		st.AverageSetSize += cl.SetSize * n
		st.AverageExperience += float64(cl.Experience) * n
		st.AverageTimeStamp += float64(cl.TimeStamp) * n
	})
	micro := float64(st.Size)
	st.AveragePrediction /= micro
	st.AverageFitness /= float64(st.MacroSize)
	st.AverageError /= micro
	st.AverageSetSize /= micro
	st.AverageExperience /= micro
	st.AverageTimeStamp /= micro
	st.AverageNumerosity = micro / float64(st.MacroSize)
	return st
}
