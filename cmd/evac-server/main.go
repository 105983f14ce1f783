package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Garsondee/Evac-Sense/internal/evac"
	"github.com/Garsondee/Evac-Sense/internal/persistence/eventlog"
	"github.com/Garsondee/Evac-Sense/internal/persistence/runindex"
	"github.com/Garsondee/Evac-Sense/internal/scenario"
	"github.com/Garsondee/Evac-Sense/internal/transport/observer"
)

// publisher receives one report per simulated tick.
type publisher interface {
	Publish(evac.TickReport) error
}

type simOptions struct {
	seed     int64
	ticks    int
	interval time.Duration
	episodes int // <= 0 runs until cancelled
	events   string
	db       string
}

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8090", "http listen address (observers must connect from loopback)")
		scen     = flag.String("scenario", scenario.DefaultName, "built-in scenario or path to a YAML file")
		seed     = flag.Int64("seed", 0, "seed for the first episode (0 uses the scenario seed)")
		ticks    = flag.Int("ticks", 0, "ticks per episode (0 uses the scenario's length)")
		tickMs   = flag.Int("tick_ms", 200, "wall-clock milliseconds per tick")
		episodes = flag.Int("episodes", 0, "episodes to run before exiting (0 runs until interrupted)")
		queue    = flag.Int("queue", observer.DefaultQueue, "per-observer message backlog")
		events   = flag.String("events", "", "directory for compressed per-episode event logs")
		db       = flag.String("db", "", "SQLite run index to record episodes in")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[evac] ", log.LstdFlags|log.Lmicroseconds)

	sc, err := scenario.Resolve(*scen)
	if err != nil {
		logger.Fatalf("scenario: %v", err)
	}
	opts := simOptions{
		seed:     *seed,
		ticks:    *ticks,
		interval: time.Duration(*tickMs) * time.Millisecond,
		episodes: *episodes,
		events:   *events,
		db:       *db,
	}
	if opts.seed == 0 {
		opts.seed = sc.Seed
	}
	if opts.ticks <= 0 {
		opts.ticks = sc.Ticks
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	obs := observer.NewServer(sc.Name, *queue, logger)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           obs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("listening on %s (scenario=%s)", *addr, sc.Name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
			cancel()
		}
	}()

	simErr := simulate(ctx, sc, opts, obs, logger)

	obs.Close()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	if simErr != nil && !errors.Is(simErr, context.Canceled) {
		logger.Fatalf("simulate: %v", simErr)
	}
	logger.Printf("stopped (dropped %d observer messages)", obs.Dropped())
}

// simulate runs episodes of sc back to back, publishing a report every
// tick. Each episode uses the next seed.
func simulate(ctx context.Context, sc *scenario.Scenario, o simOptions, pub publisher, logger *log.Logger) error {
	var idx *runindex.Index
	if o.db != "" {
		var err error
		if idx, err = runindex.Open(o.db); err != nil {
			return err
		}
		defer idx.Close()
	}

	var tick <-chan time.Time
	if o.interval > 0 {
		t := time.NewTicker(o.interval)
		defer t.Stop()
		tick = t.C
	}

	for ep := 0; o.episodes <= 0 || ep < o.episodes; ep++ {
		seed := o.seed + int64(ep)
		run, err := episode(ctx, sc, seed, o, tick, pub)
		if err != nil {
			return err
		}
		logger.Printf("episode %d seed=%d ticks=%d %s", ep+1, seed, run.Ticks, run.Metrics)
		if idx != nil {
			if _, err := idx.Record(ctx, run); err != nil {
				return err
			}
		}
	}
	return nil
}

func episode(ctx context.Context, sc *scenario.Scenario, seed int64, o simOptions, tick <-chan time.Time, pub publisher) (run runindex.Run, err error) {
	run = runindex.Run{ID: runindex.NewRunID(), Scenario: sc.Name, Seed: seed}

	var wr *eventlog.Writer
	if o.events != "" {
		wr, err = eventlog.Create(filepath.Join(o.events, fmt.Sprintf("%s-%s.jsonl.zst", sc.Name, run.ID)))
		if err != nil {
			return run, err
		}
		defer func() {
			if cerr := wr.Close(); err == nil {
				err = cerr
			}
		}()
		run.EventLog = wr.Path()
	}

	w, err := sc.Build(seed)
	if err != nil {
		return run, err
	}
	run.Agents = len(w.Agents())
	if wr != nil {
		if err := wr.WriteHeader(eventlog.Header{RunID: run.ID, Scenario: sc.Name, Seed: seed, Agents: run.Agents}); err != nil {
			return run, err
		}
		w.Log().Attach(wr)
	}

	for i := 0; i < o.ticks && !w.Done(); i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return run, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return run, err
		}
		w.Step()
		rpt := evac.BuildTickReport(w)
		if err := pub.Publish(rpt); err != nil {
			return run, err
		}
		if wr != nil {
			if err := wr.WriteTick(rpt); err != nil {
				return run, err
			}
		}
	}
	if err := w.Log().Err(); err != nil {
		return run, fmt.Errorf("event log: %w", err)
	}
	run.Ticks = w.Tick()
	run.Metrics = w.Metrics()
	return run, nil
}
