package xcs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xcsgo/internal/env"
	"xcsgo/internal/random"
	"xcsgo/internal/rules"
)

func testParams() Parameters {
	p := DefaultParameters()
	p.MaxPopulation = 400
	p.EpsilonZero = 10
	return p
}

func newTestSystem(t *testing.T, p Parameters, conds rules.ConditionSpace, acts rules.ActionSpace, rng random.Source, e Environment) *System {
	t.Helper()
	s, err := New(p, conds, acts, rng, e)
	require.NoError(t, err)
	return s
}

func multiplexer(t *testing.T, rng random.Source) *env.Boolean {
	t.Helper()
	mp, err := env.NewBoolean(env.BooleanConfig{Function: env.Multiplexer, AddressSize: 2}, rng)
	require.NoError(t, err)
	return mp
}

func mpConds() *rules.TernarySpace {
	return &rules.TernarySpace{Size: 6, DontCareProb: 0.33, Crossover: rules.TwoPointCrossover}
}

// runProblems alternates explore and exploit single-step problems and
// checks the invariants after every step.
func runProblems(t *testing.T, s *System, e env.Environment, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		explore := i%2 == 0
		s.BeginProblem()
		e.BeginProblem(explore)
		require.NoError(t, s.Step(explore, false))
		s.EndProblem()
		require.NoError(t, s.Check(), "problem %d", i)
	}
}

func TestStepKeepsInvariantsOnMultiplexer(t *testing.T) {
	rng := random.New(7)
	p := testParams()
	p.MaxPopulation = 60
	p.GASubsumption = true
	p.ASSubsumption = true
	mp := multiplexer(t, rng)
	s := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, rng, mp)
	require.NoError(t, s.BeginExperiment())

	runProblems(t, s, mp, 2000)

	st := s.Statistics()
	assert.LessOrEqual(t, s.Size(), 60)
	assert.Equal(t, s.Size(), st.Size)
	assert.Positive(t, st.GA)
	assert.Positive(t, st.Covering)
	assert.Equal(t, int64(1000), s.TotalSteps())
}

func TestRandomDeletionKeepsBudget(t *testing.T) {
	for _, d := range []Deletion{DeleteStandard, DeleteRandom, DeleteRandomWithAccuracy} {
		t.Run(d.String(), func(t *testing.T) {
			rng := random.New(5)
			p := testParams()
			p.MaxPopulation = 20
			p.Deletion = d
			p.TournamentSelection = true
			mp := multiplexer(t, rng)
			s := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, rng, mp)
			require.NoError(t, s.BeginExperiment())
			runProblems(t, s, mp, 400)
			assert.LessOrEqual(t, s.Size(), 20)
		})
	}
}

func TestLearnsSixMultiplexer(t *testing.T) {
	rng := random.New(1)
	p := testParams()
	p.GASubsumption = true
	mp := multiplexer(t, rng)
	s := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, rng, mp)
	require.NoError(t, s.BeginExperiment())

	runProblems(t, s, mp, 12000)

	correct := 0
	mp.ResetProblem()
	for {
		payoffs, err := s.Predict(mp.State())
		require.NoError(t, err)
		best := 0
		if payoffs[1] > payoffs[0] {
			best = 1
		}
		if best == mp.Value() {
			correct++
		}
		if !mp.NextProblem() {
			break
		}
	}
	assert.GreaterOrEqual(t, correct, 58, "correct answers out of 64")
}

func TestStandardCoveringFromEmptyPopulation(t *testing.T) {
	p := testParams()
	p.Covering = CoverStandard
	s := newTestSystem(t, p, testConds, testActs, random.New(3), nil)
	require.NoError(t, s.BeginExperiment())

	state := rules.BinaryInputs("0101")
	_, err := s.Predict(state)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Size())
	require.Len(t, s.match, 1)
	assert.True(t, s.pop.Get(s.match[0]).Match(state))
	assert.Len(t, s.PredictionArray().Available(), 1)
	assert.Equal(t, 1, s.Statistics().Covering)
}

func TestActionCoveringAdvocatesEveryAction(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(3), nil)
	require.NoError(t, s.BeginExperiment())

	_, err := s.Predict(rules.BinaryInputs("0101"))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, s.PredictionArray().Available())
	assert.Equal(t, 2, s.Size())
	assert.Equal(t, 2, s.Statistics().Covering)
	for _, h := range s.match {
		cl := s.pop.Get(h)
		assert.Equal(t, 10.0, cl.Prediction)
		assert.Equal(t, 0.01, cl.Fitness)
		assert.Equal(t, int64(0), cl.TimeStamp)
	}
}

func TestCoveringThresholdBelowActionCount(t *testing.T) {
	p := testParams()
	p.CoveringThreshold = 1
	s := newTestSystem(t, p, testConds, &rules.IntegerSpace{Actions: 4}, random.New(3), nil)
	require.NoError(t, s.BeginExperiment())

	_, err := s.Predict(rules.BinaryInputs("1100"))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, s.PredictionArray().Available())
}

func TestCoveringThresholdAboveActionCountIsRejected(t *testing.T) {
	p := testParams()
	p.CoveringThreshold = 3
	_, err := New(p, testConds, testActs, random.New(1), nil)
	require.Error(t, err)
}

func TestPredictionArrayIsFitnessWeighted(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	for _, r := range []struct {
		cond       string
		action     int
		prediction float64
		fitness    float64
	}{
		{"01##", 0, 100, 0.5},
		{"0###", 0, 0, 0.5},
		{"##01", 1, 200, 1},
	} {
		cl := rule(r.cond, r.action)
		cl.Prediction, cl.Fitness = r.prediction, r.fitness
		s.pop.Insert(cl, 0)
	}
	s.buildMatchSet(rules.BinaryInputs("0101"))
	s.pa.build(s.pop, s.match)

	assert.Equal(t, []int{0, 1}, s.pa.Available())
	assert.InDelta(t, 50, s.pa.Slots[0].Payoff, 1e-12)
	assert.InDelta(t, 200, s.pa.Slots[1].Payoff, 1e-12)
	assert.Equal(t, 2, s.pa.Slots[0].Count)
	assert.InDelta(t, 200, s.pa.MaxPayoff(), 1e-12)
}

func TestDeterministicSelectionPicksBestAction(t *testing.T) {
	acts := &rules.IntegerSpace{Actions: 3}
	for seed := int64(1); seed <= 50; seed++ {
		s := newTestSystem(t, testParams(), testConds, acts, random.New(seed), nil)
		for a, pred := range []float64{10, 50, 30} {
			cl := rule("####", a)
			cl.Prediction, cl.Fitness = pred, 1
			s.pop.Insert(cl, 0)
		}
		s.pa.build(s.pop, s.pop.Handles())
		require.Equal(t, 1, s.selectAction(ExploreDeterministic), "seed %d", seed)
	}
}

func TestDeterministicSelectionBreaksTiesRandomly(t *testing.T) {
	acts := &rules.IntegerSpace{Actions: 3}
	s := newTestSystem(t, testParams(), testConds, acts, random.New(9), nil)
	for a := 0; a < 3; a++ {
		cl := rule("####", a)
		cl.Fitness = 1
		s.pop.Insert(cl, 0)
	}
	s.pa.build(s.pop, s.pop.Handles())
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		seen[s.selectAction(ExploreDeterministic)] = true
	}
	assert.Len(t, seen, 3)
}

func TestProportionalSelectionFallsBackToRandom(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(2), nil)
	for a := 0; a < 2; a++ {
		cl := rule("####", a)
		cl.Prediction = 0
		s.pop.Insert(cl, 0)
	}
	s.pa.build(s.pop, s.pop.Handles())
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		seen[s.selectAction(ExploreProportional)] = true
	}
	assert.Len(t, seen, 2)
}

func TestActionSetHoldsSelectedAction(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(4), nil)
	for _, c := range []string{"0###", "01##", "##01", "#1#1"} {
		s.pop.Insert(rule(c, 1), 0)
		s.pop.Insert(rule(c, 0), 0)
	}
	s.pop.Insert(rule("0###", 1), 0)
	s.pop.Insert(rule("1###", 1), 0)
	assert.Equal(t, 9, s.buildMatchSet(rules.BinaryInputs("0101")))
	require.Len(t, s.match, 8)
	s.buildActionSet(1)
	require.Len(t, s.action, 4)
	for _, h := range s.action {
		assert.Equal(t, 1, s.pop.Get(h).Action.Index())
	}
}

func TestUpdatePastMAMCutover(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	h, _ := s.pop.Insert(rule("01#1", 1), 0)
	cl := s.pop.Get(h)
	cl.Experience = 10
	cl.Fitness = 1

	s.updateSet(20, []Handle{h})

	assert.Equal(t, 11, cl.Experience)
	assert.InDelta(t, 12, cl.Prediction, 1e-12)
	assert.InDelta(t, 2, cl.Error, 1e-12)
	assert.InDelta(t, 1, cl.SetSize, 1e-12)
	// the only rule of the set gets all the relative accuracy
	assert.InDelta(t, 1, cl.Fitness, 1e-12)
}

func TestUpdateUsesMAMForYoungRules(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	a, _ := s.pop.Insert(rule("01#1", 1), 0)
	b, _ := s.pop.Insert(rule("0###", 1), 0)
	s.pop.AddNumerosity(b, 2)

	s.updateSet(20, []Handle{a, b})

	for _, h := range []Handle{a, b} {
		cl := s.pop.Get(h)
		assert.Equal(t, 1, cl.Experience)
		assert.InDelta(t, 20, cl.Prediction, 1e-12)
		assert.InDelta(t, 10, cl.Error, 1e-12)
		assert.InDelta(t, 4, cl.SetSize, 1e-12)
	}
}

func TestPredictionFirstUpdate(t *testing.T) {
	p := testParams()
	p.UpdateErrorFirst = false
	s := newTestSystem(t, p, testConds, testActs, random.New(1), nil)
	h, _ := s.pop.Insert(rule("01#1", 1), 0)
	cl := s.pop.Get(h)
	cl.Experience = 10

	s.updateSet(20, []Handle{h})

	assert.InDelta(t, 12, cl.Prediction, 1e-12)
	assert.InDelta(t, 1.6, cl.Error, 1e-12)
}

func TestGradientDescentScalesByFitnessShare(t *testing.T) {
	p := testParams()
	p.GradientDescent = true
	s := newTestSystem(t, p, testConds, testActs, random.New(1), nil)
	a, _ := s.pop.Insert(rule("01#1", 1), 0)
	b, _ := s.pop.Insert(rule("0###", 1), 0)
	for _, h := range []Handle{a, b} {
		s.pop.Get(h).Experience = 10
		s.pop.Get(h).Fitness = 0.5
	}

	s.updateSet(20, []Handle{a, b})
	assert.InDelta(t, 11, s.pop.Get(a).Prediction, 1e-12)

	// a young rule still moves by the fixed rate under MAM
	young := newTestSystem(t, p, testConds, testActs, random.New(1), nil)
	h, _ := young.pop.Insert(rule("01#1", 1), 0)
	young.pop.Get(h).Fitness = 1
	require.True(t, young.params.UseMAM)
	young.updateSet(20, []Handle{h})
	assert.Equal(t, 1, young.pop.Get(h).Experience)
	assert.InDelta(t, 12, young.pop.Get(h).Prediction, 1e-12)
	assert.InDelta(t, 10, young.pop.Get(h).Error, 1e-12)
}

func TestFitnessFavoursAccurateRules(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	a, _ := s.pop.Insert(rule("01#1", 1), 0)
	b, _ := s.pop.Insert(rule("0###", 1), 0)
	s.pop.Get(a).Error = 0
	s.pop.Get(b).Error = 100

	s.updateFitness([]Handle{a, b})
	assert.Greater(t, s.pop.Get(a).Fitness, s.pop.Get(b).Fitness)
}

func TestActionSetSubsumption(t *testing.T) {
	p := testParams()
	p.ASSubsumption = true
	p.ThetaASSub = 20
	s := newTestSystem(t, p, testConds, testActs, random.New(1), nil)

	general, _ := s.pop.Insert(rule("0###", 1), 0)
	g := s.pop.Get(general)
	g.Experience, g.Error = 30, 0
	specific, _ := s.pop.Insert(rule("01#1", 1), 0)
	other, _ := s.pop.Insert(rule("0#1#", 1), 0)
	unrelated, _ := s.pop.Insert(rule("1###", 1), 0)
	s.action = []Handle{general, specific, other, unrelated}
	s.prevAction = []Handle{specific}

	s.actionSetSubsumption(s.action)

	assert.Equal(t, 4, s.Size())
	assert.Equal(t, 2, s.pop.MacroSize())
	assert.Equal(t, 3, g.Numerosity)
	assert.Equal(t, 2, s.Statistics().Subsumption)
	assert.ElementsMatch(t, []Handle{general, unrelated}, s.action)
	assert.Empty(t, s.prevAction)
	require.NoError(t, s.Check())
}

func TestActionSetSubsumptionNeedsExperience(t *testing.T) {
	p := testParams()
	p.ThetaASSub = 20
	s := newTestSystem(t, p, testConds, testActs, random.New(1), nil)
	general, _ := s.pop.Insert(rule("0###", 1), 0)
	specific, _ := s.pop.Insert(rule("01#1", 1), 0)
	s.pop.Get(general).Experience = 20

	s.actionSetSubsumption([]Handle{general, specific})
	assert.Equal(t, 2, s.pop.MacroSize())
}

type noSubsumption struct {
	*rules.TernarySpace
}

func (noSubsumption) AllowGASubsumption() bool { return false }

func TestDisallowedSubsumptionIsRejected(t *testing.T) {
	p := testParams()
	p.GASubsumption = true
	_, err := New(p, noSubsumption{testConds}, testActs, random.New(1), nil)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestDeletionRestoresBudget(t *testing.T) {
	for _, d := range []Deletion{DeleteStandard, DeleteAccuracyBased, DeleteRandom} {
		t.Run(d.String(), func(t *testing.T) {
			p := testParams()
			p.MaxPopulation = 3
			p.Deletion = d
			s := newTestSystem(t, p, testConds, testActs, random.New(8), nil)
			var hs []Handle
			for _, c := range []string{"0###", "1###", "#0##", "#1##"} {
				h, _ := s.pop.Insert(rule(c, 0), 0)
				hs = append(hs, h)
			}
			s.match = hs
			s.action = hs[:2]

			s.deleteOne()
			assert.Equal(t, 3, s.Size())
			require.NoError(t, s.Check())

			s.deleteOne()
			assert.Equal(t, 3, s.Size(), "no deletion within budget")
		})
	}
}

func TestAccuracyVoteTargetsUnfitRules(t *testing.T) {
	p := testParams()
	p.MaxPopulation = 1
	s := newTestSystem(t, p, testConds, testActs, random.New(1), nil)
	fit, _ := s.pop.Insert(rule("0###", 0), 0)
	unfit, _ := s.pop.Insert(rule("1###", 0), 0)
	s.pop.Get(fit).Fitness = 1
	s.pop.Get(unfit).Fitness = 0.0001
	s.pop.Get(unfit).Experience = 100

	removed := 0
	for seed := int64(1); seed <= 100; seed++ {
		s.rng = random.New(seed)
		if s.rouletteVictim() == unfit {
			removed++
		}
	}
	assert.Greater(t, removed, 90)
}

func TestNeedGA(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	h, _ := s.pop.Insert(rule("0###", 0), 0)
	s.totalSteps = 30

	assert.True(t, s.needGA([]Handle{h}, true))
	assert.False(t, s.needGA([]Handle{h}, false))
	assert.False(t, s.needGA(nil, true))

	s.pop.Get(h).TimeStamp = 10
	assert.False(t, s.needGA([]Handle{h}, true))
}

func TestGeneticAlgorithmAddsOffspring(t *testing.T) {
	p := testParams()
	p.Crossover = 1
	s := newTestSystem(t, p, testConds, testActs, random.New(6), nil)
	var set []Handle
	for _, c := range []string{"01##", "0#0#", "##01"} {
		h, _ := s.pop.Insert(rule(c, 1), 0)
		set = append(set, h)
	}
	s.totalSteps = 40

	s.geneticAlgorithm(set, rules.BinaryInputs("0101"), false)

	assert.Equal(t, 5, s.Size())
	for _, h := range set {
		if cl := s.pop.Get(h); cl != nil {
			assert.Equal(t, int64(40), cl.TimeStamp)
		}
	}
	require.NoError(t, s.Check())
}

func TestGASubsumptionAbsorbsOffspring(t *testing.T) {
	p := testParams()
	p.GASubsumption = true
	p.Crossover = 0
	p.Mutation = 0
	s := newTestSystem(t, p, testConds, testActs, random.New(6), nil)
	h, _ := s.pop.Insert(rule("0###", 1), 0)
	cl := s.pop.Get(h)
	cl.Experience, cl.Error, cl.Fitness = 50, 0, 1

	s.geneticAlgorithm([]Handle{h}, rules.BinaryInputs("0101"), false)

	assert.Equal(t, 1, s.pop.MacroSize())
	assert.Equal(t, 3, cl.Numerosity)
	assert.Equal(t, 2, s.Statistics().Subsumption)
}

func TestCondensationDoesNotCreateRules(t *testing.T) {
	p := testParams()
	p.MaxPopulation = 4
	s := newTestSystem(t, p, testConds, testActs, random.New(6), nil)
	var set []Handle
	for _, c := range []string{"01##", "0#0#", "##01", "#1#1"} {
		h, _ := s.pop.Insert(rule(c, 1), 0)
		set = append(set, h)
	}
	next := s.pop.NextID()

	s.geneticAlgorithm(set, rules.BinaryInputs("0101"), true)

	assert.Equal(t, 4, s.Size())
	assert.Equal(t, next, s.pop.NextID())
	require.NoError(t, s.Check())
}

// zeroSource returns zero for every draw.
type zeroSource struct{}

func (zeroSource) Float64() float64     { return 0 }
func (zeroSource) NormFloat64() float64 { return 0 }
func (zeroSource) Dice(int) int         { return 0 }
func (zeroSource) Seed() int64          { return 0 }

func TestCondensationSelectsByRoulette(t *testing.T) {
	p := testParams()
	p.TournamentSelection = true
	p.TournamentSize = 1
	s := newTestSystem(t, p, testConds, testActs, zeroSource{}, nil)
	fit, _ := s.pop.Insert(rule("01##", 1), 0)
	s.pop.AddNumerosity(fit, 8)
	s.pop.Get(fit).Fitness = 0.9
	weak, _ := s.pop.Insert(rule("0#0#", 1), 0)
	s.pop.Get(weak).Fitness = 0.2

	s.geneticAlgorithm([]Handle{fit, weak}, rules.BinaryInputs("0101"), true)

	assert.Equal(t, 11, s.pop.Get(fit).Numerosity)
	assert.Equal(t, 1, s.pop.Get(weak).Numerosity)
	assert.Equal(t, 0, s.Statistics().GA)
	require.NoError(t, s.Check())
}

func TestRandomInitialPopulation(t *testing.T) {
	p := testParams()
	p.MaxPopulation = 30
	p.Initial = InitialPopulation{Kind: InitRandom}
	s := newTestSystem(t, p, testConds, testActs, random.New(1), nil)
	require.NoError(t, s.BeginExperiment())
	assert.Equal(t, 30, s.Size())
}

func TestSolutionInitialPopulation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solution.txt")
	require.NoError(t, os.WriteFile(path, []byte("0### 0 1000\n\n1### 1 0\n"), 0o644))

	p := testParams()
	p.MaxPopulation = 5
	p.Initial = InitialPopulation{Kind: InitSolution, Path: path}
	s := newTestSystem(t, p, testConds, testActs, random.New(1), nil)
	require.NoError(t, s.BeginExperiment())

	var nums []int
	s.pop.Each(func(_ Handle, cl *Classifier) {
		nums = append(nums, cl.Numerosity)
		assert.Equal(t, 2.0, cl.SetSize)
		assert.Equal(t, 1.0, cl.Fitness)
		assert.Equal(t, 1, cl.Experience)
	})
	assert.Equal(t, []int{3, 2}, nums)
	assert.Equal(t, 5, s.Size())
}

func TestSolutionRejectsMalformedLines(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	err := s.ReadSolution(bytes.NewBufferString("0### 0\n"))
	assert.ErrorIs(t, err, ErrMalformedRecord)
	err = s.ReadSolution(bytes.NewBufferString(""))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestLoadInitialPopulation(t *testing.T) {
	rng := random.New(2)
	p := testParams()
	p.MaxPopulation = 50
	mp := multiplexer(t, rng)
	s := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, rng, mp)
	require.NoError(t, s.BeginExperiment())
	runProblems(t, s, mp, 200)

	path := filepath.Join(t.TempDir(), "population.txt")
	var buf bytes.Buffer
	require.NoError(t, s.SavePopulation(&buf))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	p.Initial = InitialPopulation{Kind: InitLoad, Path: path}
	loaded := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, random.New(3), nil)
	require.NoError(t, loaded.BeginExperiment())

	var again bytes.Buffer
	require.NoError(t, loaded.SavePopulation(&again))
	if diff := cmp.Diff(buf.String(), again.String()); diff != "" {
		t.Fatalf("loaded population differs (-saved +loaded):\n%s", diff)
	}
}

func TestStateRoundTrip(t *testing.T) {
	rng := random.New(4)
	p := testParams()
	p.MaxPopulation = 80
	mp := multiplexer(t, rng)
	s := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, rng, mp)
	require.NoError(t, s.BeginExperiment())
	runProblems(t, s, mp, 300)

	var state bytes.Buffer
	require.NoError(t, s.SaveState(&state))

	restored := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, random.New(9), nil)
	require.NoError(t, restored.RestoreState(bytes.NewReader(state.Bytes())))

	var want, got bytes.Buffer
	require.NoError(t, s.SavePopulation(&want))
	require.NoError(t, restored.SavePopulation(&got))
	if diff := cmp.Diff(want.String(), got.String()); diff != "" {
		t.Fatalf("population differs (-saved +restored):\n%s", diff)
	}
	assert.Equal(t, s.TotalSteps(), restored.TotalSteps())
	assert.Equal(t, s.LearningSteps(), restored.LearningSteps())
	assert.Equal(t, s.pop.NextID(), restored.pop.NextID())
	ws, gs := s.Statistics(), restored.Statistics()
	assert.Equal(t, [5]int{ws.Size, ws.MacroSize, ws.GA, ws.Covering, ws.Subsumption},
		[5]int{gs.Size, gs.MacroSize, gs.GA, gs.Covering, gs.Subsumption})
}

func TestRestoreStateRejectsBadHeaders(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	for _, text := range []string{
		"",
		"steps x\n",
		"steps 1\nlearning-steps 1\ntime 1\nnext-id 1\noperators 1 2\n",
		"steps 1\nlearning-steps 1\ntime 1\nnext-id 1\noperators 0 0 0\npopulation 2\n",
	} {
		err := s.RestoreState(bytes.NewBufferString(text))
		assert.ErrorIs(t, err, ErrMalformedRecord, "state %q", text)
	}
}

func TestFailedRestoreKeepsPopulation(t *testing.T) {
	rng := random.New(4)
	p := testParams()
	p.MaxPopulation = 80
	mp := multiplexer(t, rng)
	s := newTestSystem(t, p, mpConds(), &rules.IntegerSpace{Actions: 2}, rng, mp)
	require.NoError(t, s.BeginExperiment())
	runProblems(t, s, mp, 100)

	var before bytes.Buffer
	require.NoError(t, s.SavePopulation(&before))
	steps, size := s.TotalSteps(), s.Size()

	var state bytes.Buffer
	require.NoError(t, s.SaveState(&state))
	lines := bytes.SplitAfter(state.Bytes(), []byte("\n"))
	require.Greater(t, len(lines), 8)
	broken := append(bytes.Join(lines[:8], nil), []byte("not a classifier\n")...)

	err := s.RestoreState(bytes.NewReader(broken))
	require.ErrorIs(t, err, ErrMalformedRecord)

	var after bytes.Buffer
	require.NoError(t, s.SavePopulation(&after))
	assert.Equal(t, before.String(), after.String())
	assert.Equal(t, steps, s.TotalSteps())
	assert.Equal(t, size, s.Size())
	require.NoError(t, s.Check())
	runProblems(t, s, mp, 10)
}

type countingObserver struct {
	covered, ga, steps int
}

func (o *countingObserver) Covered(n int)                   { o.covered += n }
func (o *countingObserver) GeneticAlgorithm()               { o.ga++ }
func (o *countingObserver) Subsumed(int)                    {}
func (o *countingObserver) Deleted(bool)                    {}
func (o *countingObserver) Stepped(bool, int, int, float64) { o.steps++ }

func TestObserverSeesEngineEvents(t *testing.T) {
	rng := random.New(12)
	obs := &countingObserver{}
	mp := multiplexer(t, rng)
	s, err := New(testParams(), mpConds(), &rules.IntegerSpace{Actions: 2}, rng, mp, WithObserver(obs))
	require.NoError(t, err)
	require.NoError(t, s.BeginExperiment())
	runProblems(t, s, mp, 200)

	st := s.Statistics()
	assert.Equal(t, 200, obs.steps)
	assert.Equal(t, st.Covering, obs.covered)
	assert.Equal(t, st.GA, obs.ga)
}

func TestStepWithoutEnvironment(t *testing.T) {
	s := newTestSystem(t, testParams(), testConds, testActs, random.New(1), nil)
	require.Error(t, s.Step(true, false))
}
