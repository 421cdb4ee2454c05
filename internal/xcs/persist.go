package xcs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const maxLine = 1 << 20

func (s *System) initPopulation() error {
	switch s.params.Initial.Kind {
	case InitRandom:
		for i := 0; i < s.params.MaxPopulation; i++ {
			cl := s.newClassifier(s.conds.Random(s.rng), s.acts.Random(s.rng), false)
			s.pop.Insert(cl, s.totalSteps)
		}
		return nil
	case InitLoad:
		f, err := os.Open(s.params.Initial.Path)
		if err != nil {
			return fmt.Errorf("open initial population: %w", err)
		}
		defer f.Close()
		return s.ReadPopulation(f)
	case InitSolution:
		f, err := os.Open(s.params.Initial.Path)
		if err != nil {
			return fmt.Errorf("open solution: %w", err)
		}
		defer f.Close()
		return s.ReadSolution(f)
	default:
		return nil
	}
}

// SavePopulation writes one line per macro-classifier.
func (s *System) SavePopulation(w io.Writer) error {
	_, err := s.pop.WriteTo(w)
	return err
}

// ReadPopulation adds the classifiers of a population file to [P], keeping
// their identifiers. Rules beyond the budget are deleted.
func (s *System) ReadPopulation(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		cl, err := ParseClassifier(text, s.conds, s.acts)
		if err != nil {
			return fmt.Errorf("population line %d: %w", line, err)
		}
		cl.TimeStamp = s.totalSteps
		s.pop.Add(cl)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read population: %w", err)
	}
	s.trimToBudget()
	return nil
}

// ReadSolution seeds [P] with a known solution, one "condition action
// prediction" triple per line. The budget is shared evenly among the rules.
func (s *System) ReadSolution(r io.Reader) error {
	var entries []Classifier
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return fmt.Errorf("solution line %d: %w: want condition, action and prediction", line, ErrMalformedRecord)
		}
		cond, err := s.conds.Parse(fields[0])
		if err != nil {
			return fmt.Errorf("solution line %d: %w: %v", line, ErrMalformedRecord, err)
		}
		act, err := s.acts.Parse(fields[1])
		if err != nil {
			return fmt.Errorf("solution line %d: %w: %v", line, ErrMalformedRecord, err)
		}
		pred, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return fmt.Errorf("solution line %d: %w: prediction %q", line, ErrMalformedRecord, fields[2])
		}
		entries = append(entries, Classifier{
			Condition:  cond,
			Action:     act,
			Prediction: pred,
			Fitness:    1,
			Experience: 1,
			TimeStamp:  s.totalSteps,
		})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read solution: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: solution has no classifiers", ErrMalformedRecord)
	}
	if len(entries) > s.params.MaxPopulation {
		return fmt.Errorf("solution has %d classifiers, population size is %d", len(entries), s.params.MaxPopulation)
	}
	share := s.params.MaxPopulation / len(entries)
	extra := s.params.MaxPopulation % len(entries)
	for i, cl := range entries {
		cl.Numerosity = share
		if i < extra {
			cl.Numerosity++
		}
		cl.SetSize = float64(share)
		cl.ID = s.pop.NextID()
		s.pop.Add(cl)
	}
	return nil
}

func (s *System) trimToBudget() {
	if s.pop.Size() <= s.params.MaxPopulation {
		return
	}
	s.log.Warn("population exceeds budget, deleting",
		zap.Int("population_size", s.pop.Size()),
		zap.Int("max_population", s.params.MaxPopulation),
	)
	for s.pop.Size() > s.params.MaxPopulation {
		s.deleteOne()
	}
}

// SaveState writes the step counters, the identifier counter, the
// operator counts and the population.
func (s *System) SaveState(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "steps %d\n", s.totalSteps)
	fmt.Fprintf(bw, "learning-steps %d\n", s.learningSteps)
	fmt.Fprintf(bw, "time %d\n", s.totalTime)
	fmt.Fprintf(bw, "next-id %d\n", s.pop.NextID())
	fmt.Fprintf(bw, "operators %d %d %d\n", s.counters.GA, s.counters.Covering, s.counters.Subsumption)
	fmt.Fprintf(bw, "population %d\n", s.pop.MacroSize())
	if err := bw.Flush(); err != nil {
		return err
	}
	return s.SavePopulation(w)
}

// RestoreState replaces counters and population with a saved state.
func (s *System) RestoreState(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)
	header := func(key string, n int) ([]int64, error) {
		text, err := br.ReadString('\n')
		if err != nil && text == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedRecord, key)
		}
		fields := strings.Fields(text)
		if len(fields) != n+1 || fields[0] != key {
			return nil, fmt.Errorf("%w: want %s line, got %q", ErrMalformedRecord, key, strings.TrimSpace(text))
		}
		out := make([]int64, n)
		for i := range out {
			v, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil || v < 0 {
				return nil, fmt.Errorf("%w: %s value %q", ErrMalformedRecord, key, fields[i+1])
			}
			out[i] = v
		}
		return out, nil
	}

	var values [6][]int64
	layout := []struct {
		key string
		n   int
	}{{"steps", 1}, {"learning-steps", 1}, {"time", 1}, {"next-id", 1}, {"operators", 3}, {"population", 1}}
	for i, l := range layout {
		v, err := header(l.key, l.n)
		if err != nil {
			return err
		}
		values[i] = v
	}

	// The population is read into a scratch arena so a failed restore
	// leaves the population, the views and the counters untouched.
	saved := *s
	s.pop = NewPopulation()
	s.clearViews()
	s.totalSteps = values[0][0]
	s.learningSteps = values[1][0]
	s.totalTime = values[2][0]
	s.counters = counters{GA: int(values[4][0]), Covering: int(values[4][1]), Subsumption: int(values[4][2])}
	err := s.readState(br, values[5][0], uint64(values[3][0]))
	if err != nil {
		*s = saved
	}
	return err
}

func (s *System) readState(r io.Reader, macro int64, nextID uint64) error {
	if err := s.ReadPopulation(r); err != nil {
		return err
	}
	if got := s.pop.MacroSize(); int64(got) != macro {
		return fmt.Errorf("%w: state lists %d classifiers, read %d", ErrMalformedRecord, macro, got)
	}
	if nextID > s.pop.NextID() {
		s.pop.SetNextID(nextID)
	}
	return s.Check()
}
