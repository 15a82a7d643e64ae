package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/socmon/internal/systest"
)

func TestClockTicks(t *testing.T) {
	t.Setenv("CLK_TCK", "")
	assert.Equal(t, 100, ClockTicks())

	t.Setenv("CLK_TCK", "250")
	assert.Equal(t, 250, ClockTicks())

	t.Setenv("CLK_TCK", "bogus")
	assert.Equal(t, 100, ClockTicks())
}

func TestTicksToDuration(t *testing.T) {
	t.Setenv("CLK_TCK", "")
	assert.Equal(t, 10*time.Millisecond, TicksToDuration(1))
	assert.Equal(t, 2500*time.Millisecond, TicksToDuration(250))

	t.Setenv("CLK_TCK", "1000")
	assert.Equal(t, time.Millisecond, TicksToDuration(1))
}

func TestReadCPUTimes(t *testing.T) {
	tr := systest.New(t)
	tr.WriteStat([]systest.CPUStat{
		{User: 10, Nice: 1, System: 5, Idle: 100, IOWait: 3, IRQ: 1, SoftIRQ: 2, Steal: 0},
		{User: 20, Idle: 50},
	})

	times, err := ReadCPUTimes(tr.Proc())
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.Equal(t, CPUTimes{Active: 19, Idle: 103}, times[0])
	assert.Equal(t, CPUTimes{Active: 20, Idle: 50}, times[1])
	assert.Equal(t, uint64(122), times[0].Total())

	active, total, err := ReadSystemCPU(tr.Proc())
	require.NoError(t, err)
	assert.Equal(t, uint64(39), active)
	assert.Equal(t, uint64(192), total)
}

func TestReadCPUTimes_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		tr := systest.New(t)
		_, err := ReadCPUTimes(tr.Proc())
		require.Error(t, err)
		_, _, err = ReadSystemCPU(tr.Proc())
		require.Error(t, err)
	})

	t.Run("no cpu lines", func(t *testing.T) {
		tr := systest.New(t)
		tr.Write("proc/stat", "intr 1 2 3\nctxt 4\n")
		_, err := ReadCPUTimes(tr.Proc())
		require.ErrorIs(t, err, ErrNoCPU)
		_, _, err = ReadSystemCPU(tr.Proc())
		require.ErrorIs(t, err, ErrNoCPU)
	})

	t.Run("short line", func(t *testing.T) {
		tr := systest.New(t)
		tr.Write("proc/stat", "cpu  1 2 3\n")
		_, _, err := ReadSystemCPU(tr.Proc())
		require.ErrorIs(t, err, ErrShortStat)
	})
}
