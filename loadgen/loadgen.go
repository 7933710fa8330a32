// The loadgen package measures handshake latency through a completion
// device: a writer signals, one of several blocked readers consumes
// the signal, and the writer waits for that reader before the next
// round.
package loadgen

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"complgate/api/dev"
	"complgate/ctx"
	db "complgate/debug"
	"complgate/devreg"
	"complgate/serr"
)

type LoadGenerator struct {
	reg      *devreg.Registry
	name     string
	nreader  int
	nround   int
	sleepdur time.Duration   // Interval between rounds; 0 means back-to-back.
	lats     []time.Duration // Latencies.
	nread    []int           // Signals consumed per reader.
	elapsed  time.Duration
}

// MakeLoadGenerator returns a generator running nround handshakes on
// device name with nreader readers, at most maxrps per second (0 for
// no limit).
func MakeLoadGenerator(reg *devreg.Registry, name string, nreader, nround, maxrps int) *LoadGenerator {
	lg := &LoadGenerator{
		reg:     reg,
		name:    name,
		nreader: nreader,
		nround:  nround,
		lats:    make([]time.Duration, 0, nround),
		nread:   make([]int, nreader),
	}
	if maxrps > 0 {
		lg.sleepdur = time.Second / time.Duration(maxrps)
	}
	return lg
}

func (lg *LoadGenerator) reader(c dev.CtxI, f *devreg.File, r int, done chan<- int) error {
	b := make([]byte, 1)
	for {
		if _, err := f.ReadAt(c, b, 0); err != nil {
			if err.IsErrIntr() || serr.IsErrCode(err, serr.TErrClosed) {
				return nil
			}
			db.DPrintf(db.LOADGEN, "reader %d err %v", r, err)
			return err
		}
		lg.nread[r]++
		select {
		case done <- r:
		case <-c.Context().Done():
			return nil
		}
	}
}

// Run opens one ORDWR file shared by the writer and all readers, so
// the readers park on the writer's gate in either sharing mode.
func (lg *LoadGenerator) Run(c context.Context) error {
	if lg.nreader < 1 || lg.nround < 1 {
		return fmt.Errorf("bad load %d readers %d rounds", lg.nreader, lg.nround)
	}
	wctx := ctx.NewCtxCurrent(c)
	f, err := lg.reg.Open(wctx, lg.name, dev.ORDWR)
	if err != nil {
		return err
	}
	defer f.Close(wctx)

	rc, cancel := context.WithCancel(c)
	defer cancel()
	g, gctx := errgroup.WithContext(rc)
	done := make(chan int)
	for r := 0; r < lg.nreader; r++ {
		r := r
		g.Go(func() error {
			return lg.reader(ctx.NewCtxCurrent(gctx), f, r, done)
		})
	}

	var t *time.Ticker
	if lg.sleepdur > 0 {
		t = time.NewTicker(lg.sleepdur)
		defer t.Stop()
	}
	start := time.Now()
	var rerr error
	for i := 0; i < lg.nround; i++ {
		if t != nil {
			<-t.C
		}
		st := time.Now()
		if _, err := f.WriteAt(wctx, []byte{'w'}, 0); err != nil {
			rerr = err
			break
		}
		select {
		case r := <-done:
			lg.lats = append(lg.lats, time.Since(st))
			db.DPrintf(db.LOADGEN, "round %d: reader %d lat %v", i, r, time.Since(st))
		case <-gctx.Done():
			rerr = gctx.Err()
		}
		if rerr != nil {
			break
		}
	}
	lg.elapsed = time.Since(start)
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if rerr != nil && c.Err() == nil {
		return rerr
	}
	db.DPrintf(db.LOADGEN, "%d rounds in %v", len(lg.lats), lg.elapsed)
	return nil
}

// NRead returns how many signals each reader consumed.
func (lg *LoadGenerator) NRead() []int {
	return lg.nread
}

type Stats struct {
	N       int
	Elapsed time.Duration
	Mean    float64 // ms
	P50     float64
	P90     float64
	P99     float64
	Max     float64
}

func (st *Stats) String() string {
	rate := float64(st.N) / st.Elapsed.Seconds()
	return fmt.Sprintf("%s handshakes in %v (%s/s)\nmean %.3fms p50 %.3fms p90 %.3fms p99 %.3fms max %.3fms",
		humanize.Comma(int64(st.N)), st.Elapsed.Round(time.Millisecond), humanize.SIWithDigits(rate, 1, ""),
		st.Mean, st.P50, st.P90, st.P99, st.Max)
}

func (lg *LoadGenerator) Stats() (*Stats, error) {
	data := make([]float64, len(lg.lats))
	for i, l := range lg.lats {
		data[i] = float64(l.Microseconds()) / 1000.0
	}
	st := &Stats{N: len(data), Elapsed: lg.elapsed}
	var err error
	if st.Mean, err = stats.Mean(data); err != nil {
		return nil, fmt.Errorf("mean: %w", err)
	}
	if st.P50, err = stats.Percentile(data, 50); err != nil {
		return nil, fmt.Errorf("percentile 50: %w", err)
	}
	if st.P90, err = stats.Percentile(data, 90); err != nil {
		return nil, fmt.Errorf("percentile 90: %w", err)
	}
	if st.P99, err = stats.Percentile(data, 99); err != nil {
		return nil, fmt.Errorf("percentile 99: %w", err)
	}
	if st.Max, err = stats.Max(data); err != nil {
		return nil, fmt.Errorf("max: %w", err)
	}
	db.DPrintf(db.LOADGEN, "Latency stats %v", st)
	return st, nil
}
