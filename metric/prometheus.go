package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rtgraph"

var (
	nodesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "instances"),
		"Number of nodes of the type in the graph.",
		[]string{"type"}, nil,
	)
	blocksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "blocks_total"),
		"Total blocks processed.",
		[]string{"type"}, nil,
	)
	framesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "frames_total"),
		"Total frames processed.",
		[]string{"type"}, nil,
	)
	eventsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "events_total"),
		"Total events delivered to processors.",
		[]string{"type"}, nil,
	)
	bypassedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "bypassed_total"),
		"Total bypassed blocks.",
		[]string{"type"}, nil,
	)
	faultsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "faults_total"),
		"Total blocks that faulted.",
		[]string{"type"}, nil,
	)
	latencyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "latency_seconds"),
		"Time between the last two processing calls.",
		[]string{"type"}, nil,
	)
	processDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "node", "process_seconds"),
		"Duration of the last processing call.",
		[]string{"type"}, nil,
	)
)

// Collector exposes node counters to prometheus.
type Collector struct{}

// NewCollector returns a new prometheus collector of node metrics.
func NewCollector() prometheus.Collector {
	return Collector{}
}

// Describe implements prometheus.Collector.
func (Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		nodesDesc,
		blocksDesc,
		framesDesc,
		eventsDesc,
		bypassedDesc,
		faultsDesc,
		latencyDesc,
		processDesc,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range components.snapshot() {
		ch <- prometheus.MustNewConstMetric(nodesDesc, prometheus.GaugeValue, float64(m.nodes.Value()), m.key)
		ch <- prometheus.MustNewConstMetric(blocksDesc, prometheus.CounterValue, float64(m.blocks.Value()), m.key)
		ch <- prometheus.MustNewConstMetric(framesDesc, prometheus.CounterValue, float64(m.frames.Value()), m.key)
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(m.events.Value()), m.key)
		ch <- prometheus.MustNewConstMetric(bypassedDesc, prometheus.CounterValue, float64(m.bypassed.Value()), m.key)
		ch <- prometheus.MustNewConstMetric(faultsDesc, prometheus.CounterValue, float64(m.faults.Value()), m.key)
		ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, m.latency.value().Seconds(), m.key)
		ch <- prometheus.MustNewConstMetric(processDesc, prometheus.GaugeValue, m.process.value().Seconds(), m.key)
	}
}
