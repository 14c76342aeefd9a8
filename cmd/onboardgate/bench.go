package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/backend/memory"
)

var (
	benchUsers       int
	benchConcurrency int
	benchOps         int
	benchRedisAddr   string
	benchPrefix      string
)

// Paths a signed-in browser typically walks through.
var benchPaths = []string{"/", "/dashboard", "/matches", "/profile/create", "/verify", "/about", "/_next/static/app.js"}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load test gate decisions and record creation",
	Long: `Bench seeds an in-memory record store with users in every onboarding
state and runs two phases against a gate: navigation decisions and phone
record creation. Redis (or miniredis when --redis-addr is empty) backs the
existence cache.`,
	Example: `  onboardgate bench --users 10000 --concurrency 64 --ops 100000`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if benchUsers <= 0 || benchConcurrency <= 0 || benchOps <= 0 {
			return errors.New("users, concurrency and ops must be > 0")
		}
		return runBench(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchUsers, "users", 10000, "Number of users to seed")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 64, "Number of concurrent workers")
	benchCmd.Flags().IntVar(&benchOps, "ops", 100000, "Operations per phase")
	benchCmd.Flags().StringVar(&benchRedisAddr, "redis-addr", "", "Redis address; miniredis is used when empty")
	benchCmd.Flags().StringVar(&benchPrefix, "prefix", "ogbench", "Redis key prefix")
}

func runBench(ctx context.Context, out io.Writer) error {
	addr := benchRedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store := memory.New()
	users := make([]string, benchUsers)
	startSeed := time.Now()
	for i := range users {
		users[i] = fmt.Sprintf("user-%d", i)
		switch i % 3 {
		case 1:
			store.Seed(onboardgate.RecordPhone, users[i], map[string]any{"phone_number": "+15550000000"})
		case 2:
			store.Seed(onboardgate.RecordPhone, users[i], map[string]any{"phone_number": "+15550000000"})
			store.Seed(onboardgate.RecordProfile, users[i], map[string]any{"name": users[i]})
		}
	}
	fmt.Fprintf(out, "seeded %d users in %s\n", benchUsers, time.Since(startSeed).Round(time.Millisecond))

	cfg := onboardgate.DefaultConfig()
	cfg.Cache.RedisPrefix = benchPrefix
	cfg.RateLimit.RedisPrefix = benchPrefix
	gate, err := onboardgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithSessionProvider(onboardgate.SessionProviderFunc(noSession)).
		WithRecordStore(store).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		return err
	}
	defer gate.Close()

	evaluate := runPhase(benchOps, benchConcurrency, func(r *rand.Rand, _ int) error {
		sess := &onboardgate.Session{UserID: users[r.Intn(len(users))]}
		if d := gate.Evaluate(ctx, sess, benchPaths[r.Intn(len(benchPaths))]); d.FailedOpen {
			return errors.New("failed open")
		}
		return nil
	})
	create := runPhase(benchOps, benchConcurrency, func(_ *rand.Rand, i int) error {
		sess := &onboardgate.Session{UserID: fmt.Sprintf("new-%d", i)}
		return gate.CreateRecord(ctx, sess, onboardgate.RecordPhone, map[string]any{"phone_number": "+15551234567"})
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "evaluate", evaluate)
	printStats(out, "create", create)
	return nil
}

func noSession(context.Context, *http.Request) (*onboardgate.Session, error) {
	return nil, nil
}

// runPhase spreads ops calls of op over concurrency workers. op receives a
// per-worker random source and the global operation index.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
