package perf

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rolecounter/internal/contract"
	jobmetrics "github.com/odyssey-erp/rolecounter/internal/jobs"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
	"github.com/odyssey-erp/rolecounter/internal/state"
)

const self rbac.AccountID = "counter.perf.near"

func deployedEngine(tb testing.TB, store state.Store) *contract.Engine {
	tb.Helper()
	engine, err := contract.NewEngine(contract.Config{
		Store:  store,
		Self:   self,
		Grants: contract.Grants{rbac.RoleResetter: {"resetter.perf.near"}},
	})
	require.NoError(tb, err)
	_, err = engine.Deploy(context.Background())
	require.NoError(tb, err)
	return engine
}

func TestCallLatencyTargets(t *testing.T) {
	if testing.Short() {
		t.Skip("latency scenarios skipped in short mode")
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	scenarios := []struct {
		name      string
		store     state.Store
		threshold time.Duration
	}{
		{name: "memory", store: state.NewMemoryStore(), threshold: 20 * time.Millisecond},
		{name: "redis", store: state.NewRedisStore(client, "perf"), threshold: 100 * time.Millisecond},
	}

	ctx := context.Background()
	for _, scenario := range scenarios {
		engine := deployedEngine(t, scenario.store)
		samples := make([]time.Duration, 0, 200)
		for i := 0; i < 200; i++ {
			start := time.Now()
			_, err := engine.Call(ctx, "anyone.perf.near", "increment", nil)
			require.NoError(t, err)
			samples = append(samples, time.Since(start))
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s call latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkIncrementMemory(b *testing.B) {
	engine := deployedEngine(b, state.NewMemoryStore())
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Call(ctx, "anyone.perf.near", "increment", nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDeniedResetMemory(b *testing.B) {
	engine := deployedEngine(b, state.NewMemoryStore())
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Call(ctx, "anyone.perf.near", "reset", nil); err == nil {
			b.Fatal("expected permission error")
		}
	}
}

func TestAuditJobReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 60; i++ {
		require.NoError(t, metrics.Track("acl:event").End(nil))
	}
	for i := 0; i < 3; i++ {
		require.Error(t, metrics.Track("acl:event").End(errors.New("insert failed")))
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	success := metricValue(t, families, "rolecounter_jobs_total", map[string]string{"job": "acl:event", "status": "success"})
	failure := metricValue(t, families, "rolecounter_jobs_total", map[string]string{"job": "acl:event", "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("audit job success ratio too low: %f", ratio)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*0.95)]
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
