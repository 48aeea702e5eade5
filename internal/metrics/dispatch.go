package metrics

import "time"

// Prefix is the metric namespace of this server.
const Prefix = "atproto_mcp"

var latencyBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60}

// Dispatch records tool-call metrics on a Collector.
type Dispatch struct {
	c        *Collector
	inFlight *Gauge
}

func NewDispatch(c *Collector) *Dispatch {
	return &Dispatch{
		c:        c,
		inFlight: c.Gauge(Prefix+"_tool_calls_in_flight", "Tool calls currently executing", ""),
	}
}

// Started marks a call as in flight and returns a func that completes it.
func (d *Dispatch) Started(tool string) func(outcome string, elapsed time.Duration) {
	d.inFlight.Inc()
	return func(outcome string, elapsed time.Duration) {
		d.inFlight.Dec()
		d.c.Counter(Prefix+"_tool_calls_total", "Total tool calls by outcome",
			Labels("tool", tool, "outcome", outcome)).Inc()
		d.c.Histogram(Prefix+"_tool_latency_seconds", "Tool call latency in seconds",
			Labels("tool", tool), latencyBuckets).Observe(elapsed.Seconds())
	}
}

// UnknownTool counts calls for names outside the catalog.
func (d *Dispatch) UnknownTool() {
	d.c.Counter(Prefix+"_unknown_tool_total", "Calls for tools that are not registered", "").Inc()
}
