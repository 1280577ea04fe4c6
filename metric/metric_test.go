package metric_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/rtgraph/metric"
)

func TestMeter(t *testing.T) {
	sampleRate := 44100
	// test cases
	var tests = []struct {
		nodeType         string
		routines         int
		blocks           int
		frames           int
		expectedFrames   string
		expectedNodes    string
		expectedBypassed string
	}{
		{
			nodeType:         "test.tone",
			routines:         2,
			blocks:           10,
			frames:           100,
			expectedFrames:   "2000",
			expectedNodes:    "2",
			expectedBypassed: "20",
		},
		{
			nodeType:         "test.tone",
			routines:         2,
			blocks:           10,
			frames:           100,
			expectedFrames:   "4000",
			expectedNodes:    "4",
			expectedBypassed: "40",
		},
	}
	// function to test meter.
	testFn := func(m *metric.Meter, wg *sync.WaitGroup, blocks, frames int) {
		m.Reset(sampleRate)
		for i := 0; i < blocks; i++ {
			start := m.Begin()
			m.Bypass()
			m.End(start, frames, 1)
		}
		wg.Done()
	}

	for _, c := range tests {
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		for i := 0; i < c.routines; i++ {
			go testFn(metric.NewMeter(c.nodeType), wg, c.blocks, c.frames)
		}
		// check if no data race.
		wg.Wait()
		values := metric.Get(c.nodeType)
		assert.Equal(t, c.expectedFrames, values[metric.FrameCounter])
		assert.Equal(t, c.expectedNodes, values[metric.NodeCounter])
		assert.Equal(t, c.expectedBypassed, values[metric.BypassCounter])
	}
	assert.Contains(t, metric.GetAll(), "test.tone")
}

func TestDuration(t *testing.T) {
	m := metric.NewMeter("test.duration")
	m.Reset(1000)
	for i := 0; i < 4; i++ {
		m.End(m.Begin(), 250, 0)
	}
	values := metric.Get("test.duration")
	assert.Equal(t, `"`+time.Second.String()+`"`, values[metric.DurationCounter])
	m.Fault()
	assert.Equal(t, "1", metric.Get("test.duration")[metric.FaultCounter])
	m.Close()
	assert.Equal(t, "0", metric.Get("test.duration")[metric.NodeCounter])
}

func TestNilMeter(t *testing.T) {
	var m *metric.Meter
	assert.NotPanics(t, func() {
		m.Reset(44100)
		m.End(m.Begin(), 10, 1)
		m.Bypass()
		m.Fault()
		m.Close()
	})
}

func TestCollector(t *testing.T) {
	metric.NewMeter("test.collector")
	// every node type exposes 8 series
	assert.Equal(t, 8*len(metric.GetAll()), testutil.CollectAndCount(metric.NewCollector()))
}
