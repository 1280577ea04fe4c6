package collector_test

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/internal/threadid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// table mocks a large shared resource and records the thread that tears
// it down.
type table struct {
	data     []float64
	released atomic.Int32
	thread   atomic.Int64
}

func (t *table) Release() {
	t.released.Add(1)
	t.thread.Store(int64(threadid.Get()))
}

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestCloneRelease(t *testing.T) {
	c := collector.New()
	tbl := &table{data: make([]float64, 1024)}
	h := collector.NewArc(c, tbl)
	assert.Equal(t, 1, h.RefCount())

	h2 := h.Clone()
	assert.Equal(t, 2, h.RefCount())
	assert.Equal(t, h, h2)
	assert.Same(t, tbl, *h2.Get())

	h.Release()
	assert.Equal(t, 1, h2.RefCount())
	assert.Equal(t, 0, c.Pending())

	h2.Release()
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, int32(0), tbl.released.Load(), "teardown must not run on release")

	assert.Equal(t, 1, c.Collect())
	assert.Equal(t, int32(1), tbl.released.Load())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, uint64(1), c.Reclaimed())
	assert.Equal(t, 0, c.Collect())
}

func TestNilHandle(t *testing.T) {
	var h collector.ArcGc[int]
	assert.True(t, h.IsNil())
	assert.Nil(t, h.Get())
	assert.Equal(t, 0, h.RefCount())
	assert.NotPanics(t, func() {
		h.Clone().Release()
	})
	assert.Equal(t, "ArcGc(nil)", h.String())
}

func TestDoubleRelease(t *testing.T) {
	c := collector.New()
	h := collector.NewArc(c, 1)
	h.Release()
	assert.Panics(t, func() {
		h.Release()
	})
}

func TestCloseHook(t *testing.T) {
	var errs []error
	c := collector.New(collector.WithErrorHandler(func(err error) {
		errs = append(errs, err)
	}))
	closeErr := errors.New("close failed")
	ok := &closer{}
	failing := &closer{err: closeErr}
	collector.NewArc(c, ok).Release()
	collector.NewArc(c, failing).Release()

	assert.Equal(t, 2, c.Collect())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
	assert.Equal(t, []error{closeErr}, errs)
}

func TestGlobalCollector(t *testing.T) {
	tbl := &table{}
	before := collector.Global().Retired()
	collector.NewArc(nil, tbl).Release()
	assert.Equal(t, before+1, collector.Global().Retired())
	collector.Global().Collect()
	assert.Equal(t, int32(1), tbl.released.Load())
}

// Dropping the last reference on the realtime goroutine must hand the
// teardown to the thread that runs Collect.
func TestReclaimThread(t *testing.T) {
	c := collector.New()
	tbl := &table{}
	h := collector.NewArc(c, tbl)

	rtThread := make(chan int)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		h.Release()
		rtThread <- threadid.Get()
		// keep the thread busy until teardown is checked.
		<-rtThread
	}()
	rt := <-rtThread

	assert.Equal(t, int32(0), tbl.released.Load())
	assert.Equal(t, 1, c.Pending())

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	require.Equal(t, 1, c.Collect())
	assert.Equal(t, int32(1), tbl.released.Load())
	assert.Equal(t, int64(c.Thread()), tbl.thread.Load())
	if rt != 0 {
		assert.NotEqual(t, int64(rt), tbl.thread.Load())
	}
	rtThread <- 0
}

func TestConcurrentRelease(t *testing.T) {
	const handles = 1000
	c := collector.New()
	tables := make([]*table, handles)
	arcs := make([]collector.ArcGc[*table], handles)
	for i := range tables {
		tables[i] = &table{}
		arcs[i] = collector.NewArc(c, tables[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	for w := 0; w < 2; w++ {
		go func(w int) {
			defer wg.Done()
			for i := w; i < handles; i += 2 {
				arcs[i].Release()
			}
		}(w)
	}
	collected := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			collected += c.Collect()
			assert.Equal(t, handles, collected)
			for _, tbl := range tables {
				assert.Equal(t, int32(1), tbl.released.Load())
			}
			return
		default:
			collected += c.Collect()
		}
	}
}

func TestRealtimeOpsDoNotAllocate(t *testing.T) {
	c := collector.New()
	h := collector.NewArc(c, &table{})
	allocs := testing.AllocsPerRun(100, func() {
		h2 := h.Clone()
		_ = h2.Get()
		h2.Release()
	})
	assert.Zero(t, allocs)

	// the final release only pushes to the collector.
	handles := make([]collector.ArcGc[*table], 100)
	for i := range handles {
		handles[i] = collector.NewArc(c, &table{})
	}
	i := 0
	allocs = testing.AllocsPerRun(99, func() {
		handles[i].Release()
		i++
	})
	assert.Zero(t, allocs)
	c.Collect()
	h.Release()
	c.Collect()
}
