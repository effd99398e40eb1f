package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/netcfg/internal/inventory"
)

func hosts(n int) *inventory.Inventory {
	inv := &inventory.Inventory{}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("r%02d", i)
		inv.Hosts = append(inv.Hosts, &inventory.Host{Name: name, DevHostname: name})
	}
	return inv
}

func TestParallelExecutorCapsWorkers(t *testing.T) {
	var active, peak int32
	task := Task{Name: "count_hosts", Fn: func(ctx context.Context, h *inventory.Host) (Output, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return Output{Result: h.Name}, nil
	}}

	res := NewParallelExecutor(3).RunOnAll(context.Background(), hosts(12), task)
	require.False(t, res.Failed())
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	for i, r := range res.Results {
		require.Equal(t, fmt.Sprintf("r%02d", i), r.Host, "results keep inventory order")
		require.Equal(t, r.Host, r.Result)
		require.Equal(t, "count_hosts", r.Name)
	}
}

func TestParallelExecutorIsolatesFailures(t *testing.T) {
	task := Task{Name: "flaky", Fn: func(ctx context.Context, h *inventory.Host) (Output, error) {
		switch h.Name {
		case "r01":
			return Output{}, errors.New("auth failed")
		case "r02":
			panic("boom")
		}
		return Output{Changed: true}, nil
	}}

	res := NewParallelExecutor(0).RunOnAll(context.Background(), hosts(4), task)
	require.True(t, res.Failed())
	require.Equal(t, []string{"r01", "r02"}, res.FailedHosts())
	require.Equal(t, 2, res.Changed())
	require.Contains(t, res.Results[2].Err.Error(), "panic: boom")
}

func TestParallelExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task := Task{Name: "wait", Fn: func(ctx context.Context, h *inventory.Host) (Output, error) {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}}

	res := NewParallelExecutor(1).RunOnAll(ctx, hosts(3), task)
	require.Equal(t, 3, len(res.FailedHosts()))
}

func BenchmarkParallelExecutor(b *testing.B) {
	inv := hosts(200)
	task := Task{Name: "noop", Fn: func(context.Context, *inventory.Host) (Output, error) {
		return Output{}, nil
	}}
	exec := NewParallelExecutor(20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		exec.RunOnAll(context.Background(), inv, task)
	}
}
