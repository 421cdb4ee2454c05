package stats

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"xcsgo/internal/model"
)

// DefaultWindow is the number of testing problems averaged per point.
const DefaultWindow = 50

// Point averages a block of consecutive testing problems.
type Point struct {
	// Problems is the number of testing problems seen at the end of the block.
	Problems    int     `json:"problems"`
	Steps       float64 `json:"steps"`
	Reward      float64 `json:"reward"`
	SystemError float64 `json:"system_error"`
	Size        float64 `json:"size"`
}

// Performance averages the testing rows of one experiment in blocks of
// window problems. The last block may be shorter.
func Performance(rows []model.Problem, experiment, window int) []Point {
	if window <= 0 {
		window = DefaultWindow
	}
	var (
		out   []Point
		acc   Point
		n     int
		count int
	)
	flush := func() {
		if n == 0 {
			return
		}
		d := float64(n)
		out = append(out, Point{
			Problems:    count,
			Steps:       acc.Steps / d,
			Reward:      acc.Reward / d,
			SystemError: acc.SystemError / d,
			Size:        acc.Size / d,
		})
		acc, n = Point{}, 0
	}
	for _, p := range rows {
		if p.Experiment != experiment || p.Phase != model.PhaseTesting {
			continue
		}
		count++
		n++
		acc.Steps += float64(p.Steps)
		acc.Reward += p.Reward
		acc.SystemError += p.SystemError
		acc.Size += float64(p.Size)
		if n == window {
			flush()
		}
	}
	flush()
	return out
}

// Experiments lists the experiment numbers present in rows, in order.
func Experiments(rows []model.Problem) []int {
	seen := make(map[int]struct{})
	for _, p := range rows {
		seen[p.Experiment] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Ints(out)
	return out
}

// AveragePerformance averages the curves of every experiment point by
// point. Curves shorter than the longest one stop contributing early.
func AveragePerformance(rows []model.Problem, window int) []Point {
	var curves [][]Point
	longest := 0
	for _, e := range Experiments(rows) {
		c := Performance(rows, e, window)
		curves = append(curves, c)
		if len(c) > longest {
			longest = len(c)
		}
	}
	out := make([]Point, longest)
	for i := range out {
		n := 0
		for _, c := range curves {
			if i >= len(c) {
				continue
			}
			n++
			out[i].Problems = c[i].Problems
			out[i].Steps += c[i].Steps
			out[i].Reward += c[i].Reward
			out[i].SystemError += c[i].SystemError
			out[i].Size += c[i].Size
		}
		d := float64(n)
		out[i].Steps /= d
		out[i].Reward /= d
		out[i].SystemError /= d
		out[i].Size /= d
	}
	return out
}

func WritePerformance(w io.Writer, points []Point) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"problems", "steps", "reward", "system_error", "size"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{
			strconv.Itoa(p.Problems),
			strconv.FormatFloat(p.Steps, 'f', 4, 64),
			strconv.FormatFloat(p.Reward, 'f', 4, 64),
			strconv.FormatFloat(p.SystemError, 'f', 4, 64),
			strconv.FormatFloat(p.Size, 'f', 2, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
