// Package report renders completed runs: interactive HTML charts, a CSV of
// the step series and a JSON summary of the day.
package report

import (
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"islanding_simulator/internal/model"
	"islanding_simulator/internal/simulator"
)

const noValue = "-" // echarts gap

var noSymbol = charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})

func clockAxis(n int) []string {
	x := make([]string, n)
	for i := range x {
		x[i] = model.StepClock(i)
	}
	return x
}

func lineData(n int, value func(i int) interface{}) []opts.LineData {
	items := make([]opts.LineData, n)
	for i := range items {
		items[i] = opts.LineData{Value: value(i)}
	}
	return items
}

func baseLine(title, subtitle, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time", SplitNumber: 24}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100, XAxisIndex: []int{0}}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100, XAxisIndex: []int{0}}),
	)
	return line
}

// PowerFlowChart plots the per-step power balance of a run.
func PowerFlowChart(run *simulator.Run) *charts.Line {
	s := run.Series
	n := s.Len()
	pb := s.PowerBalance

	line := baseLine(run.Scenario.Name+": power balance", run.Scenario.Description, "kW")
	line.SetXAxis(clockAxis(n)).
		AddSeries("PV", lineData(n, func(i int) interface{} { return pb[i].PVKW }), noSymbol).
		AddSeries("Battery", lineData(n, func(i int) interface{} { return pb[i].BatteryKW }), noSymbol).
		AddSeries("Load", lineData(n, func(i int) interface{} { return pb[i].LoadKW }), noSymbol).
		AddSeries("Local supply", lineData(n, func(i int) interface{} { return pb[i].SupplyKW }), noSymbol).
		AddSeries("Grid", lineData(n, func(i int) interface{} { return pb[i].GridKW }), noSymbol).
		AddSeries("Unserved", lineData(n, func(i int) interface{} { return pb[i].UnservedKW }), noSymbol)
	return line
}

// VoltageChart plots the monitored voltage band with the nominal reference
// and, on a second axis, the battery SoC.
func VoltageChart(run *simulator.Run, nominal float64) *charts.Line {
	s := run.Series
	n := s.Len()
	v := s.Voltage

	band := func(pick func(simulator.VoltageStats) float64) func(int) interface{} {
		return func(i int) interface{} {
			if !v[i].Energized {
				return noValue
			}
			return pick(v[i])
		}
	}

	line := baseLine(run.Scenario.Name+": voltage band and SoC", run.Scenario.Description, "V")
	line.ExtendYAxis(opts.YAxis{Name: "SoC %", Min: 0, Max: 100})
	line.SetXAxis(clockAxis(n)).
		AddSeries("Vmin", lineData(n, band(func(x simulator.VoltageStats) float64 { return x.Min })), noSymbol).
		AddSeries("Vmean", lineData(n, band(func(x simulator.VoltageStats) float64 { return x.Mean })), noSymbol,
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "nominal", YAxis: nominal})).
		AddSeries("Vmax", lineData(n, band(func(x simulator.VoltageStats) float64 { return x.Max })), noSymbol)
	if run.Scenario.HasBattery {
		line.AddSeries("SoC", lineData(n, func(i int) interface{} {
			if s.SoC[i] == nil {
				return noValue
			}
			return *s.SoC[i]
		}), charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1, ShowSymbol: opts.Bool(false)}))
	}
	return line
}

// RenderPage writes both charts of a run as one HTML page.
func RenderPage(w io.Writer, run *simulator.Run, nominal float64) error {
	page := components.NewPage()
	page.PageTitle = run.Scenario.Name
	page.AddCharts(PowerFlowChart(run), VoltageChart(run, nominal))
	return page.Render(w)
}

// Handler serves the chart page of a run.
func Handler(run *simulator.Run, nominal float64) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := RenderPage(w, run, nominal); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
