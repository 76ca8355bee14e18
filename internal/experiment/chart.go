package experiment

import (
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an HTML page plotting the mean reward rate per episode
// together with the mean plus and minus one standard deviation.
func (r *Results) RenderChart(w io.Writer, title string) error {
	summary := r.EpisodeSummary()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: "running reward per action, " + strconv.Itoa(len(r.Trials)) + " trials",
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)

	episodes := make([]string, len(summary))
	mean := make([]opts.LineData, len(summary))
	upper := make([]opts.LineData, len(summary))
	lower := make([]opts.LineData, len(summary))
	for i, s := range summary {
		episodes[i] = strconv.Itoa(s.Episode)
		mean[i] = opts.LineData{Value: s.Mean}
		upper[i] = opts.LineData{Value: s.Mean + s.StdDev}
		lower[i] = opts.LineData{Value: s.Mean - s.StdDev}
	}

	line.SetXAxis(episodes).
		AddSeries("mean", mean).
		AddSeries("mean+sd", upper).
		AddSeries("mean-sd", lower)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
