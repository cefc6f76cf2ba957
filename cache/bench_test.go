package cache

import (
	"context"
	"testing"

	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/probe"
	"github.com/jonwraymond/nodediag/remote"
)

// BenchmarkGet_Fresh measures a successful refresh and store.
func BenchmarkGet_Fresh(b *testing.B) {
	c := New(RunnerFunc(func(context.Context, *node.Node, probe.Probe, string) remote.Result {
		return ok("report")
	}))
	n := connectedWorker("A")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Get(ctx, n, testProbe, label, NoConnection)
	}
}

// BenchmarkGet_Stale measures serving a disconnected node from cache.
func BenchmarkGet_Stale(b *testing.B) {
	r := &fakeRunner{}
	r.push(ok("report"))
	c := New(r)
	n := connectedWorker("A")
	ctx := context.Background()
	_ = c.Get(ctx, n, testProbe, label, NoConnection)
	n.SetConnected(false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Get(ctx, n, testProbe, label, NoConnection)
	}
}

// BenchmarkGet_Parallel measures contention on one node.
func BenchmarkGet_Parallel(b *testing.B) {
	c := New(RunnerFunc(func(context.Context, *node.Node, probe.Probe, string) remote.Result {
		return ok("report")
	}))
	n := connectedWorker("A")
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = c.Get(ctx, n, testProbe, label, NoConnection)
		}
	})
}
