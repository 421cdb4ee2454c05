package xcs

// Observer receives engine events. Implementations must be cheap; they are
// called from inside the step.
type Observer interface {
	Covered(n int)
	GeneticAlgorithm()
	Subsumed(n int)
	Deleted(entryRemoved bool)
	Stepped(explore bool, populationSize, macroSize int, systemError float64)
}

type nopObserver struct{}

func (nopObserver) Covered(int)                     {}
func (nopObserver) GeneticAlgorithm()               {}
func (nopObserver) Subsumed(int)                    {}
func (nopObserver) Deleted(bool)                    {}
func (nopObserver) Stepped(bool, int, int, float64) {}
