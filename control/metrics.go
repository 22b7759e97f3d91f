package control

import (
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var (
	missedWakeupsMeasure = stats.Int64(
		"motioncore/control/missed_wakeups",
		"Wake events skipped because the handler overran its period",
		stats.UnitDimensionless,
	)
	handlerLatencyMeasure = stats.Float64(
		"motioncore/control/handler_latency",
		"Time spent in the periodic handler",
		stats.UnitMilliseconds,
	)

	// Views aggregates the loop measures. Register them with view.Register or RegisterViews.
	Views = []*view.View{
		{
			Name:        missedWakeupsMeasure.Name(),
			Description: missedWakeupsMeasure.Description(),
			Measure:     missedWakeupsMeasure,
			Aggregation: view.Sum(),
		},
		{
			Name:        handlerLatencyMeasure.Name(),
			Description: handlerLatencyMeasure.Description(),
			Measure:     handlerLatencyMeasure,
			Aggregation: view.Distribution(0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 50),
		},
	}
)

// RegisterViews registers Views with the default opencensus exporter pipeline.
func RegisterViews() error {
	return view.Register(Views...)
}
