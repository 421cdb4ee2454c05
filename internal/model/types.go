package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Run status values.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

type Run struct {
	VersionedRecord
	ID          string    `json:"id"`
	Environment string    `json:"environment"`
	Seed        int64     `json:"seed"`
	Experiments int       `json:"experiments"`
	Status      string    `json:"status"`
	Config      string    `json:"config"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Problem phases as written to the statistics.
const (
	PhaseLearning = "Learning"
	PhaseTesting  = "Testing"
	PhaseSolution = "Solution"
)

// Problem is one statistics row: a problem solved during an experiment.
type Problem struct {
	Experiment   int     `json:"experiment"`
	Problem      int     `json:"problem"`
	Steps        int     `json:"steps"`
	Reward       float64 `json:"reward"`
	Size         int     `json:"size"`
	SystemError  float64 `json:"system_error"`
	SingleStep   bool    `json:"single_step"`
	Phase        string  `json:"phase"`
	Condensation bool    `json:"condensation,omitempty"`
	Trace        string  `json:"trace,omitempty"`
}

// PopulationSnapshot holds the population lines of an experiment after the
// given problem. Problem zero marks the final population.
type PopulationSnapshot struct {
	VersionedRecord
	RunID      string `json:"run_id"`
	Experiment int    `json:"experiment"`
	Problem    int    `json:"problem"`
	Size       int    `json:"size"`
	MacroSize  int    `json:"macro_size"`
	Lines      string `json:"lines"`
}

// ExperimentState is everything needed to resume an experiment: the mode
// of the next problem, the random stream position, the environment state
// and the classifier system state.
type ExperimentState struct {
	VersionedRecord
	RunID       string `json:"run_id"`
	Experiment  int    `json:"experiment"`
	Problem     int    `json:"problem"`
	Exploration bool   `json:"exploration"`
	Seed        int64  `json:"seed"`
	Position    uint64 `json:"position"`
	Environment string `json:"environment"`
	System      string `json:"system"`
}

// ExperimentSummary is the closing record of one experiment.
type ExperimentSummary struct {
	Experiment        int           `json:"experiment"`
	Problems          int           `json:"problems"`
	Steps             int64         `json:"steps"`
	Size              int           `json:"size"`
	MacroSize         int           `json:"macro_size"`
	AveragePrediction float64       `json:"average_prediction"`
	AverageError      float64       `json:"average_error"`
	AverageFitness    float64       `json:"average_fitness"`
	GA                int           `json:"ga"`
	Covering          int           `json:"covering"`
	Subsumption       int           `json:"subsumption"`
	Elapsed           time.Duration `json:"elapsed"`
	AverageProblem    time.Duration `json:"average_problem"`
}

// ActionValue is the payoff predicted for every action in one state.
type ActionValue struct {
	State   string    `json:"state"`
	Payoffs []float64 `json:"payoffs"`
}
