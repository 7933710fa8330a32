package loadgen_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	db "complgate/debug"
	"complgate/gatedev"
	"complgate/loadgen"
	"complgate/test"
)

const NROUND = 200

func runLoad(t *testing.T, sharing gatedev.Tsharing, nreader int) {
	ts, err := test.NewTstate(t, sharing)
	if !assert.Nil(t, err, "NewTstate: %v", err) {
		return
	}
	defer ts.Shutdown()

	lg := loadgen.MakeLoadGenerator(ts.Reg, ts.Config().Name, nreader, NROUND, 0)
	assert.Nil(t, lg.Run(context.Background()))
	n := 0
	for _, m := range lg.NRead() {
		n += m
	}
	assert.Equal(t, NROUND, n)

	st, err := lg.Stats()
	assert.Nil(t, err)
	assert.Equal(t, NROUND, st.N)
	assert.True(t, st.P50 <= st.P99)
	assert.True(t, st.P99 <= st.Max)
	db.DPrintf(db.TEST, "%v", st)
	assert.Equal(t, 0, ts.Dev().NHandles())
}

func TestOneReader(t *testing.T) {
	runLoad(t, gatedev.GLOBAL, 1)
}

func TestManyReaders(t *testing.T) {
	runLoad(t, gatedev.GLOBAL, 8)
}

func TestPerOpen(t *testing.T) {
	runLoad(t, gatedev.PEROPEN, 4)
}

func TestRateLimit(t *testing.T) {
	ts, err := test.NewTstate(t, gatedev.GLOBAL)
	if !assert.Nil(t, err, "NewTstate: %v", err) {
		return
	}
	defer ts.Shutdown()

	lg := loadgen.MakeLoadGenerator(ts.Reg, ts.Config().Name, 2, 20, 200)
	start := time.Now()
	assert.Nil(t, lg.Run(context.Background()))
	assert.True(t, time.Since(start) >= 20*time.Second/200)
}

func TestBadLoad(t *testing.T) {
	ts, err := test.NewTstate(t, gatedev.GLOBAL)
	if !assert.Nil(t, err, "NewTstate: %v", err) {
		return
	}
	defer ts.Shutdown()

	lg := loadgen.MakeLoadGenerator(ts.Reg, ts.Config().Name, 0, 10, 0)
	assert.NotNil(t, lg.Run(context.Background()))
	_, err = lg.Stats()
	assert.NotNil(t, err)
}
