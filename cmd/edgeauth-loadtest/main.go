// Command edgeauth-loadtest drives the refresh token rotator against Redis
// and reports throughput, latency percentiles and the outcome of concurrent
// rotations of one token in both rotation modes.
//
// Without -redis-addr (or REDIS_ADDR) it runs against an in-process miniredis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type chain struct {
	mu    sync.Mutex
	owner string
	token string
}

func main() {
	var (
		tokens      = flag.Int("tokens", 10000, "number of refresh tokens to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate + rotate)")
		racers      = flag.Int("racers", 8, "concurrent rotations of the same token in the race phase")
		races       = flag.Int("races", 500, "tokens raced per mode")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "edgeauth-lt", "refresh token key prefix")
	)
	flag.Parse()

	if *tokens <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 || *races <= 0 {
		fmt.Fprintln(os.Stderr, "tokens, concurrency, ops and races must be > 0; racers must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	store := tokenstore.NewRedisStore(client, tokenstore.WithPrefix(*prefix))
	benign, err := refresh.NewRotator(store, refresh.Options{TTL: 24 * time.Hour})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	strict, err := refresh.NewRotator(store, refresh.Options{TTL: 24 * time.Hour, StrictSingleUse: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("seeding %d refresh tokens...\n", *tokens)
	startSeed := time.Now()
	chains, err := seed(ctx, benign, *tokens, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, benign, chains, *ops, *concurrency)
	rotateStats := runRotatePhase(ctx, benign, chains, *ops, *concurrency)

	benignRace, err := runRacePhase(ctx, benign, *races, *racers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "race phase failed: %v\n", err)
		os.Exit(1)
	}
	strictRace, err := runRacePhase(ctx, strict, *races, *racers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "race phase failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("rotate", rotateStats)
	printRace("race/benign", benignRace)
	printRace("race/strict", strictRace)
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seed(ctx context.Context, r *refresh.Rotator, n, concurrency int) ([]*chain, error) {
	chains := make([]*chain, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			owner := fmt.Sprintf("user-%d", i)
			token, err := r.Issue(gctx, owner)
			if err != nil {
				return err
			}
			chains[i] = &chain{owner: owner, token: token}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chains, nil
}

// runWorkers spreads ops calls of op over concurrency goroutines and collects
// per-call latency.
func runWorkers(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = newSampler(ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				latencies.add(time.Since(t0))
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies.samples(), failures)
}

func runValidatePhase(ctx context.Context, r *refresh.Rotator, chains []*chain, ops, concurrency int) phaseStats {
	return runWorkers(ops, concurrency, func(rnd *rand.Rand) error {
		c := chains[rnd.Intn(len(chains))]
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()

		owner, ok, err := r.Validate(ctx, token)
		if err != nil {
			return err
		}
		if !ok || owner != c.owner {
			return errors.New("token did not resolve to its owner")
		}
		return nil
	})
}

func runRotatePhase(ctx context.Context, r *refresh.Rotator, chains []*chain, ops, concurrency int) phaseStats {
	return runWorkers(ops, concurrency, func(rnd *rand.Rand) error {
		c := chains[rnd.Intn(len(chains))]
		c.mu.Lock()
		defer c.mu.Unlock()
		next, err := r.Rotate(ctx, c.token, c.owner)
		if err != nil {
			return err
		}
		c.token = next
		return nil
	})
}

// raceResult counts, over all raced tokens, how many concurrent rotations of
// one token succeeded.
type raceResult struct {
	races         int
	racers        int
	winners       int
	reuseRejected int
	// multiWinner counts races with more than one successful rotation.
	multiWinner int
	total       time.Duration
}

func runRacePhase(ctx context.Context, r *refresh.Rotator, races, racers int) (raceResult, error) {
	res := raceResult{races: races, racers: racers}
	start := time.Now()
	for i := 0; i < races; i++ {
		owner := fmt.Sprintf("racer-%d", i)
		token, err := r.Issue(ctx, owner)
		if err != nil {
			return res, err
		}

		var won, rejected int64
		release := make(chan struct{})
		var g errgroup.Group
		for j := 0; j < racers; j++ {
			g.Go(func() error {
				<-release
				_, err := r.Rotate(ctx, token, owner)
				switch {
				case err == nil:
					atomic.AddInt64(&won, 1)
				case errors.Is(err, refresh.ErrReuseDetected):
					atomic.AddInt64(&rejected, 1)
				default:
					return err
				}
				return nil
			})
		}
		close(release)
		if err := g.Wait(); err != nil {
			return res, err
		}

		res.winners += int(won)
		res.reuseRejected += int(rejected)
		if won > 1 {
			res.multiWinner++
		}
		if _, err := r.RevokeAll(ctx, owner); err != nil {
			return res, err
		}
	}
	res.total = time.Since(start)
	return res, nil
}

func printRace(name string, r raceResult) {
	fmt.Printf("%s: races=%d racers=%d winners=%d reuse_rejected=%d multi_winner_races=%d total=%s\n",
		name,
		r.races,
		r.racers,
		r.winners,
		r.reuseRejected,
		r.multiWinner,
		r.total.Round(time.Millisecond),
	)
}
