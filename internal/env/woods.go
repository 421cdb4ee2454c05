package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"xcsgo/internal/config"
	"xcsgo/internal/random"
	"xcsgo/internal/rules"
)

const WoodsSection = "environment::woods"

var woodsKeys = []string{"map", "rows", "binary sensors", "slide probability", "woods2 sensors"}

// Moves in sensor order: north first, then clockwise.
var (
	incX = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
	incY = [8]int{-1, -1, 0, 1, 1, 1, 0, -1}
)

// WoodsConfig describes a toroidal grid world. Rows use '.' for free
// cells, 'T' for trees and 'F' for food; woods2 maps use 'O' and 'Q' for
// rocks and 'F' and 'G' for food.
type WoodsConfig struct {
	Rows   []string
	Woods2 bool
	// Slide is the probability that a move drifts to a neighbouring
	// direction.
	Slide float64
}

type cell struct{ x, y int }

// Woods is a multi-step animat problem: the agent senses its eight
// neighbours and must reach food.
type Woods struct {
	cfg    WoodsConfig
	grid   [][]byte
	width  int
	height int
	rng    random.Source
	free   []cell
	pos    cell
	config int
	state  string
	reward float64
	path   strings.Builder
}

func NewWoods(cfg WoodsConfig, rng random.Source) (*Woods, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if cfg.Slide < 0 || cfg.Slide > 1 {
		return nil, fmt.Errorf("slide probability %v not in [0,1]", cfg.Slide)
	}
	if len(cfg.Rows) == 0 {
		return nil, fmt.Errorf("empty woods map")
	}
	w := &Woods{cfg: cfg, rng: rng, height: len(cfg.Rows), width: len(cfg.Rows[0])}
	for y, row := range cfg.Rows {
		if len(row) != w.width {
			return nil, fmt.Errorf("woods row %d has %d cells, want %d", y, len(row), w.width)
		}
		for x := 0; x < len(row); x++ {
			if _, err := w.encode(row[x]); err != nil {
				return nil, fmt.Errorf("woods row %d column %d: %w", y, x, err)
			}
		}
		w.grid = append(w.grid, []byte(row))
	}
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			if w.isFree(x, y) {
				w.free = append(w.free, cell{x, y})
			}
		}
	}
	if len(w.free) == 0 {
		return nil, fmt.Errorf("woods map has no free cell")
	}
	w.ResetProblem()
	return w, nil
}

// ReadWoodsMap reads one map row per non-empty line.
func ReadWoodsMap(r io.Reader) ([]string, error) {
	var rows []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			rows = append(rows, line)
		}
	}
	return rows, sc.Err()
}

// WoodsFromSection reads an environment::woods section. The map comes from
// the file named by "map" or from "rows", a '/' separated list of rows.
func WoodsFromSection(sec *config.Section, rng random.Source) (*Woods, error) {
	if err := sec.Check(woodsKeys); err != nil {
		return nil, err
	}
	var cfg WoodsConfig
	switch {
	case sec.ValueOr("map", "") != "":
		path := sec.ValueOr("map", "")
		f, err := os.Open(path)
		if err != nil {
			return nil, &config.KeyError{Section: sec.Name(), Key: "map", Err: config.ErrInvalidValue, Reason: err.Error()}
		}
		defer f.Close()
		if cfg.Rows, err = ReadWoodsMap(f); err != nil {
			return nil, fmt.Errorf("read woods map %s: %w", path, err)
		}
	case sec.ValueOr("rows", "") != "":
		for _, row := range strings.Split(sec.ValueOr("rows", ""), "/") {
			if row = strings.TrimSpace(row); row != "" {
				cfg.Rows = append(cfg.Rows, row)
			}
		}
	default:
		return nil, &config.KeyError{Section: sec.Name(), Key: "map", Err: config.ErrMissingKey}
	}
	binary, err := sec.FlagOr("binary sensors", true)
	if err != nil {
		return nil, err
	}
	if !binary {
		return nil, &config.KeyError{Section: sec.Name(), Key: "binary sensors", Err: config.ErrInvalidValue, Reason: "only binary sensors are supported"}
	}
	if cfg.Woods2, err = sec.FlagOr("woods2 sensors", false); err != nil {
		return nil, err
	}
	if cfg.Slide, err = sec.FloatOr("slide probability", 0); err != nil {
		return nil, err
	}
	w, err := NewWoods(cfg, rng)
	if err != nil {
		return nil, &config.KeyError{Section: sec.Name(), Err: config.ErrInvalidValue, Reason: err.Error()}
	}
	return w, nil
}

func (w *Woods) Name() string {
	if w.cfg.Woods2 {
		return "woods2"
	}
	return "woods"
}

func (w *Woods) Actions() int     { return 8 }
func (w *Woods) SingleStep() bool { return false }
func (w *Woods) Reward() float64  { return w.reward }
func (w *Woods) Stop() bool       { return w.isFood(w.pos.x, w.pos.y) }

func (w *Woods) State() rules.State { return rules.BinaryInputs(w.state) }

func (w *Woods) StateSize() int {
	if w.cfg.Woods2 {
		return 24
	}
	return 16
}

// Position returns the agent's cell.
func (w *Woods) Position() (x, y int) {
	return w.pos.x, w.pos.y
}

// Trace lists the cells visited since the problem began.
func (w *Woods) Trace() string {
	return w.path.String()
}

// BeginProblem puts the agent on a random free cell.
func (w *Woods) BeginProblem(bool) {
	where := int(float64(len(w.free)) * w.rng.Float64())
	if where >= len(w.free) {
		where = len(w.free) - 1
	}
	w.path.Reset()
	w.moveTo(w.free[where])
	w.record()
}

func (w *Woods) EndProblem() {}

func (w *Woods) ResetProblem() {
	w.config = 0
	w.path.Reset()
	w.moveTo(w.free[0])
	w.record()
}

func (w *Woods) NextProblem() bool {
	w.config++
	if w.config >= len(w.free) {
		w.ResetProblem()
		return false
	}
	w.path.Reset()
	w.moveTo(w.free[w.config])
	w.record()
	return true
}

// Perform moves the agent one cell in the chosen direction. Trees and
// rocks block the move.
func (w *Woods) Perform(a rules.Action) error {
	act, err := checkAction(a, w.Actions())
	if err != nil {
		return err
	}
	if w.cfg.Slide > 0 && w.rng.Float64() < w.cfg.Slide {
		drift := 1
		if w.rng.Dice(2) == 0 {
			drift = -1
		}
		act = wrap(act+drift, w.Actions())
	}
	next := cell{wrap(w.pos.x+incX[act], w.width), wrap(w.pos.y+incY[act], w.height)}
	if w.isFree(next.x, next.y) || w.isFood(next.x, next.y) {
		w.moveTo(next)
	}
	w.record()
	return nil
}

func (w *Woods) moveTo(c cell) {
	w.pos = c
	w.state = w.sense(c)
	if w.isFood(c.x, c.y) {
		w.reward = RewardHit
	} else {
		w.reward = RewardMiss
	}
}

func (w *Woods) record() {
	fmt.Fprintf(&w.path, "(%d,%d)", w.pos.x, w.pos.y)
}

func (w *Woods) sense(c cell) string {
	var b strings.Builder
	for d := 0; d < 8; d++ {
		sym := w.grid[wrap(c.y+incY[d], w.height)][wrap(c.x+incX[d], w.width)]
		code, _ := w.encode(sym)
		b.WriteString(code)
	}
	return b.String()
}

func (w *Woods) encode(sym byte) (string, error) {
	if w.cfg.Woods2 {
		switch sym {
		case 'O':
			return "010", nil
		case 'Q':
			return "011", nil
		case 'F':
			return "110", nil
		case 'G':
			return "111", nil
		case '.':
			return "000", nil
		}
	} else {
		switch sym {
		case 'T':
			return "10", nil
		case 'F':
			return "11", nil
		case '.':
			return "00", nil
		}
	}
	return "", fmt.Errorf("unrecognized map symbol %q", sym)
}

func (w *Woods) isFree(x, y int) bool {
	return w.grid[y][x] == '.'
}

func (w *Woods) isFood(x, y int) bool {
	s := w.grid[y][x]
	return s == 'F' || (w.cfg.Woods2 && s == 'G')
}

func wrap(v, limit int) int {
	v %= limit
	if v < 0 {
		v += limit
	}
	return v
}

// SaveState writes the agent position and the enumeration counter.
func (w *Woods) SaveState(out io.Writer) error {
	_, err := fmt.Fprintf(out, "%d\t%d\t%d\n", w.pos.x, w.pos.y, w.config)
	return err
}

func (w *Woods) RestoreState(r io.Reader) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read woods state: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return fmt.Errorf("woods state %q: want x, y and configuration", strings.TrimSpace(line))
	}
	var v [3]int
	for i, f := range fields {
		if v[i], err = strconv.Atoi(f); err != nil {
			return fmt.Errorf("woods state value %q: %w", f, err)
		}
	}
	if v[0] < 0 || v[0] >= w.width || v[1] < 0 || v[1] >= w.height {
		return fmt.Errorf("woods state position (%d,%d) outside the map", v[0], v[1])
	}
	if v[2] < 0 || v[2] >= len(w.free) {
		return fmt.Errorf("woods state configuration %d out of range", v[2])
	}
	w.config = v[2]
	w.path.Reset()
	w.moveTo(cell{v[0], v[1]})
	w.record()
	return nil
}
