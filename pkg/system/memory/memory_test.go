package memory

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/socmon/internal/systest"
	"github.com/ja7ad/socmon/pkg/soc"
)

func fixedReaders(total, used, swapTotal, swapUsed uint64, swapErr error) Option {
	return withReaders(
		func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: total, Used: used, Available: total - used}, nil
		},
		func() (*mem.SwapMemoryStat, error) {
			if swapErr != nil {
				return nil, swapErr
			}
			return &mem.SwapMemoryStat{Total: swapTotal, Used: swapUsed}, nil
		},
	)
}

func quiet() Option { return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))) }

func TestRead_Host(t *testing.T) {
	r := New(fixedReaders(16<<30, 6<<30, 2<<30, 1<<30, nil), quiet())

	m, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, soc.Memory{RAMTotal: 16 << 30, RAMUsage: 6 << 30, SwapTotal: 2 << 30, SwapUsage: 1 << 30}, m)

	total, err := r.Total()
	require.NoError(t, err)
	assert.Equal(t, uint64(16<<30), total)
}

func TestRead_SwapUnavailable(t *testing.T) {
	r := New(fixedReaders(8<<30, 1<<30, 0, 0, errors.New("no swap")), quiet())

	m, err := r.Read()
	require.NoError(t, err)
	assert.Zero(t, m.SwapTotal)
	assert.Zero(t, m.SwapUsage)
}

func TestRead_VirtualError(t *testing.T) {
	r := New(withReaders(
		func() (*mem.VirtualMemoryStat, error) { return nil, errors.New("boom") },
		mem.SwapMemory,
	), quiet())

	_, err := r.Read()
	require.Error(t, err)
	_, err = r.Total()
	require.Error(t, err)
}

func TestRead_Cgroup(t *testing.T) {
	tr := systest.New(t)
	tr.Write("proc/self/mountinfo",
		"30 23 0:26 / /sys/fs/cgroup rw,nosuid shared:4 - cgroup2 cgroup2 rw\n")
	tr.Write("sys/fs/cgroup/memory.max", "1073741824\n")
	tr.Write("sys/fs/cgroup/memory.current", "536870912\n")

	r := New(fixedReaders(16<<30, 6<<30, 0, 0, nil), WithCgroup(tr.Proc(), tr.Root), quiet())
	m, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<30), m.RAMTotal)
	assert.Equal(t, uint64(512<<20), m.RAMUsage)

	t.Run("limit above host keeps host figures", func(t *testing.T) {
		tr.Write("sys/fs/cgroup/memory.max", "68719476736\n")
		m, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, uint64(16<<30), m.RAMTotal)
	})

	t.Run("unlimited stops looking", func(t *testing.T) {
		tr.Write("sys/fs/cgroup/memory.max", "max\n")
		m, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, uint64(16<<30), m.RAMTotal)
		assert.False(t, r.limited.Load())
	})
}

func TestRead_CgroupConcurrent(t *testing.T) {
	tr := systest.New(t)
	tr.Write("proc/self/mountinfo",
		"30 23 0:26 / /sys/fs/cgroup rw,nosuid shared:4 - cgroup2 cgroup2 rw\n")
	tr.Write("sys/fs/cgroup/memory.max", "max\n")
	tr.Write("sys/fs/cgroup/memory.current", "536870912\n")

	r := New(fixedReaders(16<<30, 6<<30, 0, 0, nil), WithCgroup(tr.Proc(), tr.Root), quiet())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				m, err := r.Read()
				assert.NoError(t, err)
				assert.Equal(t, uint64(16<<30), m.RAMTotal)
			}
		}()
	}
	wg.Wait()
	assert.False(t, r.limited.Load())
}

func TestRead_ClampsUsage(t *testing.T) {
	r := New(fixedReaders(4<<30, 5<<30, 1<<20, 2<<20, nil), quiet())
	m, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, m.RAMTotal, m.RAMUsage)
	assert.Equal(t, m.SwapTotal, m.SwapUsage)
}
