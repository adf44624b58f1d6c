package perf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-admin/internal/users"
)

func newLoadedStore(tb testing.TB, n int) *users.Store {
	tb.Helper()
	seed := make([]users.User, 0, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		seed = append(seed, users.User{
			ID:        fmt.Sprintf("u-%d", i),
			Name:      fmt.Sprintf("User Number %d", i),
			Email:     fmt.Sprintf("user%d@example.com", i),
			IsAdmin:   i%10 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return users.NewStore(
		users.WithSeed(seed),
		users.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		users.WithPasswordDelay(0),
		users.WithHashCost(bcrypt.MinCost),
	)
}

func TestStoreLatencyTargets(t *testing.T) {
	store := newLoadedStore(t, 5000)
	ctx := context.Background()

	scenarios := []struct {
		name      string
		run       func(i int)
		threshold time.Duration
	}{
		{name: "add", run: func(i int) { store.AddUser(ctx, users.NewUser{Name: fmt.Sprintf("new %d", i)}) }, threshold: 5 * time.Millisecond},
		{name: "update", run: func(i int) { store.UpdateUser(ctx, fmt.Sprintf("u-%d", i), users.UserPatch{}) }, threshold: 5 * time.Millisecond},
		{name: "search", run: func(int) { store.Search("number 42") }, threshold: 50 * time.Millisecond},
	}

	for _, scenario := range scenarios {
		samples := make([]time.Duration, 0, 50)
		for i := 0; i < 50; i++ {
			start := time.Now()
			scenario.run(i)
			samples = append(samples, time.Since(start))
		}
		if p95 := percentile95(samples); p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
	require.False(t, store.Busy())
}

func BenchmarkAddUser(b *testing.B) {
	store := newLoadedStore(b, 1000)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.AddUser(ctx, users.NewUser{Name: "bench", Email: "bench@example.com"})
	}
}

func BenchmarkSearch(b *testing.B) {
	store := newLoadedStore(b, 1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Search("user 99")
	}
}

func BenchmarkParallelReadsDuringWrites(b *testing.B) {
	store := newLoadedStore(b, 1000)
	ctx := context.Background()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%10 == 0 {
				store.UpdateUser(ctx, "u-1", users.UserPatch{})
			} else {
				_ = store.Stats()
			}
			i++
		}
	})
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
