package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"xcsgo/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	statisticsFile = "statistics.csv"
	summaryFile    = "summary.json"
	configFile     = "config.json"
	settingsFile   = "settings.yaml"
)

var statisticsHeader = []string{"experiment", "problem", "steps", "reward", "size", "system_error", "phase", "condensation", "trace"}

type RunConfig struct {
	RunID                string `json:"run_id"`
	Environment          string `json:"environment"`
	ConfigPath           string `json:"config_path,omitempty"`
	Seed                 int64  `json:"seed"`
	PopulationSize       int    `json:"population_size"`
	FirstExperiment      int    `json:"first_experiment"`
	Experiments          int    `json:"experiments"`
	LearningProblems     int    `json:"learning_problems"`
	CondensationProblems int    `json:"condensation_problems"`
	TestProblems         int    `json:"test_problems"`
	Exploration          string `json:"exploration"`
	Deletion             string `json:"deletion"`
	Covering             string `json:"covering"`
	Store                string `json:"store,omitempty"`
}

// RunArtifacts is everything written to a run directory.
type RunArtifacts struct {
	Config RunConfig
	// Settings is the full configuration, as YAML.
	Settings     []byte
	Problems     []model.Problem
	Summaries    []model.ExperimentSummary
	Populations  map[int]string
	ActionValues map[int][]model.ActionValue
}

type RunIndexEntry struct {
	RunID          string  `json:"run_id"`
	Environment    string  `json:"environment"`
	PopulationSize int     `json:"population_size"`
	Experiments    int     `json:"experiments"`
	Seed           int64   `json:"seed"`
	FinalSize      int     `json:"final_size"`
	FinalMacroSize int     `json:"final_macro_size"`
	FinalReward    float64 `json:"final_reward"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if len(artifacts.Settings) > 0 {
		if err := os.WriteFile(filepath.Join(runDir, settingsFile), artifacts.Settings, 0o644); err != nil {
			return "", err
		}
	}
	if err := WriteStatistics(filepath.Join(runDir, statisticsFile), artifacts.Problems); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Summaries); err != nil {
		return "", err
	}
	for experiment, lines := range artifacts.Populations {
		if err := os.WriteFile(filepath.Join(runDir, PopulationFile(experiment)), []byte(lines), 0o644); err != nil {
			return "", err
		}
	}
	for experiment, values := range artifacts.ActionValues {
		if err := writeActionValues(filepath.Join(runDir, fmt.Sprintf("action_values-%04d.tsv", experiment)), values); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

// PopulationFile names the final population file of an experiment.
func PopulationFile(experiment int) string {
	return fmt.Sprintf("population-%04d.txt", experiment)
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the indexed runs, most recent first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	order := make(map[string]int, len(entries))
	for i, e := range entries {
		order[e.RunID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtUTC == entries[j].CreatedAtUTC {
			// later appends first
			return order[entries[i].RunID] > order[entries[j].RunID]
		}
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// ExportRunArtifacts copies every file of a run directory to outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	entries, err := os.ReadDir(src)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadSummaries(baseDir, runID string) ([]model.ExperimentSummary, bool, error) {
	var summaries []model.ExperimentSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summaries)
	return summaries, ok, err
}

func ReadRunStatistics(baseDir, runID string) ([]model.Problem, bool, error) {
	return ReadStatistics(filepath.Join(baseDir, runID, statisticsFile))
}

// WriteStatistics writes one CSV row per problem.
func WriteStatistics(path string, rows []model.Problem) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(statisticsHeader); err != nil {
		return err
	}
	for _, p := range rows {
		systemError := ""
		if p.SingleStep {
			systemError = strconv.FormatFloat(p.SystemError, 'g', -1, 64)
		}
		if err := writer.Write([]string{
			strconv.Itoa(p.Experiment),
			strconv.Itoa(p.Problem),
			strconv.Itoa(p.Steps),
			strconv.FormatFloat(p.Reward, 'g', -1, 64),
			strconv.Itoa(p.Size),
			systemError,
			p.Phase,
			strconv.FormatBool(p.Condensation),
			p.Trace,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadStatistics(path string) ([]model.Problem, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(statisticsHeader)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.Problem{}, true, nil
		}
		return nil, false, err
	}
	if strings.Join(header, ",") != strings.Join(statisticsHeader, ",") {
		return nil, false, fmt.Errorf("statistics header %v not recognized", header)
	}

	rows := make([]model.Problem, 0, 128)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		p, err := parseStatisticsRow(record)
		if err != nil {
			return nil, false, fmt.Errorf("statistics line %d: %w", line, err)
		}
		rows = append(rows, p)
	}
	return rows, true, nil
}

func parseStatisticsRow(record []string) (model.Problem, error) {
	var (
		p   model.Problem
		err error
	)
	if p.Experiment, err = strconv.Atoi(record[0]); err != nil {
		return p, err
	}
	if p.Problem, err = strconv.Atoi(record[1]); err != nil {
		return p, err
	}
	if p.Steps, err = strconv.Atoi(record[2]); err != nil {
		return p, err
	}
	if p.Reward, err = strconv.ParseFloat(record[3], 64); err != nil {
		return p, err
	}
	if p.Size, err = strconv.Atoi(record[4]); err != nil {
		return p, err
	}
	if record[5] != "" {
		p.SingleStep = true
		if p.SystemError, err = strconv.ParseFloat(record[5], 64); err != nil {
			return p, err
		}
	}
	p.Phase = record[6]
	if p.Condensation, err = strconv.ParseBool(record[7]); err != nil {
		return p, err
	}
	p.Trace = record[8]
	return p, nil
}

func writeActionValues(path string, values []model.ActionValue) error {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(v.State)
		for _, payoff := range v.Payoffs {
			b.WriteByte('\t')
			b.WriteString(strconv.FormatFloat(payoff, 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
