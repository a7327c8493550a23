package sensor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

func TestPoller_PollsAllEntitiesImmediately(t *testing.T) {
	t.Parallel()

	apis := []*fakeAPI{healthyAPI(), healthyAPI(), healthyAPI()}
	teamIDs := []string{"3", "4", "5"}
	entities := make([]*Entity, 0, len(apis))
	for i, api := range apis {
		cfg := testMatchup()
		cfg.TeamID = teamIDs[i]
		api.snap.Us.TeamKey = cfg.LeagueKey() + ".t." + cfg.TeamID
		entities = append(entities, NewEntity(EntityConfig{
			Matchup:           cfg,
			API:               api,
			MinUpdateInterval: 0,
			Logger:            logging.NewNop(),
		}))
	}

	var mu sync.Mutex
	seen := make(map[string]Snapshot)

	poller, err := NewPoller(PollerConfig{
		Entities: entities,
		Interval: time.Hour,
		Workers:  2,
		Logger:   logging.NewNop(),
		OnUpdate: func(snap Snapshot) {
			mu.Lock()
			seen[snap.EntityID] = snap
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	defer poller.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = poller.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		complete := len(seen) == len(entities)
		mu.Unlock()
		if complete {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first poll")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	for _, snap := range seen {
		if snap.State != "88.5" {
			t.Fatalf("entity %s state = %q", snap.EntityID, snap.State)
		}
	}
	for _, api := range apis {
		if api.calls["matchup"] != 1 {
			t.Fatalf("matchup calls = %d, want 1", api.calls["matchup"])
		}
	}
}
