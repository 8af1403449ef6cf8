package main

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    int
		want time.Duration
	}{
		{0, 1},
		{50, 5},
		{95, 9},
		{100, 10},
	}
	for _, tc := range tests {
		if got := percentile(samples, tc.p); got != tc.want {
			t.Fatalf("percentile(%d) = %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("percentile(nil) = %v", got)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	st := computeStats(time.Second, nil, 3)
	if st.ops != 0 || st.failures != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func rotators(t *testing.T) (benign, strict *refresh.Rotator) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := tokenstore.NewRedisStore(client, tokenstore.WithPrefix("lt"))

	var err error
	benign, err = refresh.NewRotator(store, refresh.Options{TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	strict, err = refresh.NewRotator(store, refresh.Options{TTL: time.Hour, StrictSingleUse: true})
	if err != nil {
		t.Fatal(err)
	}
	return benign, strict
}

func TestRacePhaseModes(t *testing.T) {
	benign, strict := rotators(t)
	ctx := context.Background()

	res, err := runRacePhase(ctx, strict, 20, 6)
	if err != nil {
		t.Fatal(err)
	}
	if res.winners != 20 || res.reuseRejected != 20*5 || res.multiWinner != 0 {
		t.Fatalf("strict mode must have one winner per race: %+v", res)
	}

	res, err = runRacePhase(ctx, benign, 20, 6)
	if err != nil {
		t.Fatal(err)
	}
	if res.winners != 20*6 || res.reuseRejected != 0 {
		t.Fatalf("benign mode must let every rotation succeed: %+v", res)
	}
}

func TestSeedValidateRotate(t *testing.T) {
	benign, _ := rotators(t)
	ctx := context.Background()

	chains, err := seed(ctx, benign, 50, 4)
	if err != nil {
		t.Fatal(err)
	}
	if st := runValidatePhase(ctx, benign, chains, 200, 4); st.failures != 0 || st.ops != 200 {
		t.Fatalf("validate: %+v", st)
	}
	if st := runRotatePhase(ctx, benign, chains, 200, 4); st.failures != 0 || st.ops != 200 {
		t.Fatalf("rotate: %+v", st)
	}
	if st := runValidatePhase(ctx, benign, chains, 200, 4); st.failures != 0 {
		t.Fatalf("validate after rotate: %+v", st)
	}
}
