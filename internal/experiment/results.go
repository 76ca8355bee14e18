package experiment

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Results holds every trial of an experiment in trial order
type Results struct {
	Trials []TrialResult
	rates  *mat.Dense // trials x episodes
}

// EpisodeStats aggregates one episode index across all trials
type EpisodeStats struct {
	Episode int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

// NewResults builds the rate matrix from per-trial results
func NewResults(trials []TrialResult) *Results {
	r := &Results{Trials: trials}
	if len(trials) == 0 || len(trials[0].Rates) == 0 {
		return r
	}
	episodes := len(trials[0].Rates)
	r.rates = mat.NewDense(len(trials), episodes, nil)
	for i, t := range trials {
		r.rates.SetRow(i, t.Rates)
	}
	return r
}

// Dims returns the number of trials and episodes
func (r *Results) Dims() (trials, episodes int) {
	if r.rates == nil {
		return len(r.Trials), 0
	}
	return r.rates.Dims()
}

// Rate returns the running reward rate of trial after episode
func (r *Results) Rate(trial, episode int) float64 {
	return r.rates.At(trial, episode)
}

// EpisodeRates returns the rate of every trial after episode
func (r *Results) EpisodeRates(episode int) []float64 {
	return mat.Col(nil, episode, r.rates)
}

// EpisodeSummary returns mean, standard deviation and range for every episode index
func (r *Results) EpisodeSummary() []EpisodeStats {
	trials, episodes := r.Dims()
	summary := make([]EpisodeStats, episodes)
	for e := 0; e < episodes; e++ {
		col := r.EpisodeRates(e)
		mean, std := stat.MeanStdDev(col, nil)
		if trials < 2 {
			std = 0
		}
		summary[e] = EpisodeStats{
			Episode: e,
			Mean:    mean,
			StdDev:  std,
			Min:     mat.Min(mat.NewVecDense(len(col), col)),
			Max:     mat.Max(mat.NewVecDense(len(col), col)),
		}
	}
	return summary
}

// FinalMeanRate is the mean rate across trials after the last episode
func (r *Results) FinalMeanRate() float64 {
	_, episodes := r.Dims()
	if episodes == 0 {
		return 0
	}
	return stat.Mean(r.EpisodeRates(episodes-1), nil)
}

// WriteTable writes one line per episode holding the rate of every trial,
// each value followed by ", ".
func (r *Results) WriteTable(w io.Writer) error {
	bw := bufio.NewWriter(w)
	trials, episodes := r.Dims()
	for e := 0; e < episodes; e++ {
		for t := 0; t < trials; t++ {
			bw.WriteString(strconv.FormatFloat(r.rates.At(t, e), 'f', -1, 64))
			bw.WriteString(", ")
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// WriteSummary writes the per-episode aggregates as CSV with a header row
func (r *Results) WriteSummary(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "episode,mean,stddev,min,max")
	for _, s := range r.EpisodeSummary() {
		fmt.Fprintf(bw, "%d,%.6f,%.6f,%.6f,%.6f\n", s.Episode, s.Mean, s.StdDev, s.Min, s.Max)
	}
	return bw.Flush()
}
