// Package core wires every subsystem into the single owned Core value
// described by spec §2 ("component map") and §5 ("concurrency model"):
// no module-level singletons, one value that owns the scheduler, the
// execution engine, the FAO-56 engine, the rain pipeline, the
// environmental snapshot, the master-valve manager, and the persistent
// KV store, driven by a small set of goroutines started from Run.
package core

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alexmihai1804/autowatering/internal/apperr"
	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/alexmihai1804/autowatering/internal/config"
	"github.com/alexmihai1804/autowatering/internal/kvstore"
	"github.com/alexmihai1804/autowatering/pkg/channel"
	"github.com/alexmihai1804/autowatering/pkg/envsnap"
	"github.com/alexmihai1804/autowatering/pkg/executor"
	"github.com/alexmihai1804/autowatering/pkg/fao56"
	"github.com/alexmihai1804/autowatering/pkg/mastervalve"
	"github.com/alexmihai1804/autowatering/pkg/rain"
	"github.com/alexmihai1804/autowatering/pkg/scheduler"
	"github.com/alexmihai1804/autowatering/pkg/taskqueue"
)

// Worker tick cadences: scheduler once per minute, execution engine at
// 1Hz, rain hour-boundary bookkeeping once per hour, housekeeping at
// 0.1Hz.
const (
	SchedulerInterval    = time.Minute
	ExecutorInterval     = time.Second
	HousekeepingInterval = 10 * time.Second
	RainHourBoundaryTick = time.Hour
)

// Deps bundles every external collaborator (spec §1 "out of scope"
// hardware/IO contracts) a Core needs from its caller. Nothing in this
// package talks to GPIO, I2C, or a wall clock directly.
type Deps struct {
	Clock       clock.Source
	Log         *logrus.Logger
	Store       kvstore.Store
	MasterValve mastervalve.Valve
	Valves      map[int]executor.Valve
	Flow        executor.FlowSensor
	Rain        *rain.Pipeline
	Env         *envsnap.Aggregator
}

// Core is the single value owning every subsystem. Construct with New
// and drive with Run (production) or the exported TickX methods
// (tests).
type Core struct {
	cfg *config.Config
	clk clock.Source
	log *logrus.Entry

	store kvstore.Store

	fao       *fao56.Engine
	rain      *rain.Pipeline
	env       *envsnap.Aggregator
	master    *mastervalve.Manager
	queue     *taskqueue.Queue
	executor  *executor.Engine
	scheduler *scheduler.Scheduler

	channels map[int]*channel.Channel

	monthClimatology [12]float64
}

// New builds a fully wired Core. Zone valves are taken from
// deps.Valves (keyed by channel id), not from Channel.Valve; every
// channel must pass Channel.Validate. monthClimatology is the FAO-56
// ET0 fallback table (spec §4.F).
func New(cfg *config.Config, deps Deps, channels []*channel.Channel, monthClimatology [12]float64) (*Core, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := deps.Log
	if log == nil {
		log = logrus.New()
	}

	masterValve := deps.MasterValve
	if masterValve == nil {
		// installs without a shared upstream valve still get a manager
		// (it is the sole authority the execution engine talks to);
		// Enabled stays false so the engine never tries to drive it.
		masterValve = noopValve{}
	}
	masterCfg := mastervalve.Config{Enabled: deps.MasterValve != nil, AutoManagement: true}
	master, err := mastervalve.New(masterCfg, masterValve, deps.Clock)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Config, "build master valve manager")
	}

	fao := fao56.New(deps.Clock, log, monthClimatology, buildCache(cfg.Cache))
	queue := taskqueue.New()

	c := &Core{
		cfg:              cfg,
		clk:              deps.Clock,
		log:              log.WithField("component", "core"),
		store:            deps.Store,
		fao:              fao,
		rain:             deps.Rain,
		env:              deps.Env,
		master:           master,
		queue:            queue,
		monthClimatology: monthClimatology,
	}

	channelIndex := make(map[int]*channel.Channel, len(channels))
	for _, ch := range channels {
		if err := ch.Validate(); err != nil {
			return nil, err
		}
		channelIndex[ch.ID] = ch
	}
	c.channels = channelIndex

	c.executor = executor.New(queue, master, deps.Flow, deps.Valves, deps.Clock, log, executor.DefaultConfig(flowLitersPerPulse(cfg)), c.applyTaskOutcome)

	var rainQuery scheduler.RainQuery
	if deps.Rain != nil {
		rainQuery = deps.Rain
	}
	c.scheduler = scheduler.New(deps.Clock, log, fao, rainQuery, queue)

	return c, nil
}

// noopValve stands in for an absent shared master valve so
// mastervalve.Manager always has a live collaborator to call.
type noopValve struct{}

func (noopValve) Open() error  { return nil }
func (noopValve) Close() error { return nil }
func (noopValve) IsOpen() bool { return false }

// buildCache selects the FAO-56 engine's optional cache per cfg.Cache
// (spec §4.F "Cache"). "none" is the resource-constrained flag that
// disables it; Engine treats a nil Cache as disabled.
func buildCache(cfg config.Cache) fao56.Cache {
	switch cfg.Driver {
	case "redis":
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		return fao56.NewRedisCache(client, "fao56:")
	case "none":
		return nil
	default:
		return fao56.NewMemCache()
	}
}

func flowLitersPerPulse(cfg *config.Config) float64 {
	// fixed at 450 pulses per liter: the FLOW_CALIBRATION KV record
	// (spec §6) is not read here, and cfg does not override it.
	_ = cfg
	return 1.0 / 450.0
}

// applyTaskOutcome feeds a completed task's delivered volume back into
// the FAO-56 balance (spec §4.F "reduce_deficit_after_irrigation") and
// copies the updated balance onto the channel. The periodic schedule's
// last-watering day is kept by the scheduler itself when it enqueues.
func (c *Core) applyTaskOutcome(task taskqueue.Task, status executor.Status, deliveredLiters float64) {
	ch, ok := c.channels[task.ChannelID]
	if !ok {
		return
	}
	if status != executor.StatusCompleted && status != executor.StatusAborted {
		c.log.WithField("channel_id", task.ChannelID).WithField("status", int(status)).Warn("task finished with fault status")
	}
	if deliveredLiters <= 0 {
		return
	}
	if !ch.IsConfigured() {
		return
	}
	ctx := c.channelContext(ch)
	if err := c.fao.ReduceDeficitAfterIrrigation(ctx, deliveredLiters); err != nil {
		c.log.WithField("channel_id", task.ChannelID).WithError(err).Warn("failed to reduce deficit after irrigation")
	}
	ch.Balance = c.fao.Balance(task.ChannelID)
}

// channelContext is the translation from the channel model (pkg/channel)
// into the engine's leaf-package view (pkg/fao56), keeping fao56 free
// of a channel import (spec design note: avoid the cycle).
func (c *Core) channelContext(ch *channel.Channel) fao56.ChannelContext {
	ctx := fao56.ChannelContext{
		ChannelID:         ch.ID,
		AreaBased:         ch.Coverage.Kind == channel.CoverageArea,
		AreaM2:            ch.Coverage.AreaM2,
		PlantCount:        ch.Coverage.PlantCount,
		LatitudeRad:       ch.LatitudeDeg * 3.141592653589793 / 180,
		SunExposurePct:    ch.SunExposurePct,
		EcoMode:           ch.AutoMode == channel.AutoEco,
		MaxVolumeLimitL:   ch.MaxVolumeLimitL,
		DaysAfterPlanting: ch.DaysAfterPlanting(c.clk.Now().Unix()),
	}
	return ctx
}

// TickScheduler runs one scheduling pass over every registered channel
// (spec §4.L, invoked once per minute by Run).
func (c *Core) TickScheduler(now time.Time, weather envsnap.Snapshot) []scheduler.EvalResult {
	inputs := make([]scheduler.ChannelInput, 0, len(c.channels))
	for _, ch := range c.channels {
		in := scheduler.ChannelInput{
			Channel:         ch,
			ReductionFactor: 1.0,
		}
		if ch.IsAutoMode() && ch.IsConfigured() {
			in.FAOContext = c.channelContext(ch)
			in.Weather = fao56.WeatherInputs{
				TempMeanC:     weather.TempMeanC,
				TempMinC:      weather.TempMinC,
				TempMaxC:      weather.TempMaxC,
				RHMeanPct:     weather.RHMeanPct,
				PressureHPa:   weather.PressureHPa,
				HumidityValid: weather.Valid,
			}
		}
		inputs = append(inputs, in)
	}
	return c.scheduler.Evaluate(now, inputs)
}

// TickExecutor advances the execution engine state machine (spec §4.K).
func (c *Core) TickExecutor(now time.Time) error {
	return c.executor.Tick(now)
}

// TickMasterValve advances the master-valve manager's deferred-close
// timer (spec §4.J); the execution engine calls the manager's other
// methods directly, but the scheduled-close timeout needs its own tick
// since nothing else polls it once a task finishes.
func (c *Core) TickMasterValve(now time.Time) error {
	return c.master.Tick(now)
}

// TickHousekeeping persists rain state to the KV store and reports
// fault status (spec §5 "housekeeping at 0.1Hz"). Channel water
// balances are not written here.
func (c *Core) TickHousekeeping() error {
	if c.store == nil {
		return nil
	}
	if c.rain != nil {
		if err := c.rain.SaveState(c.store); err != nil {
			return apperr.Wrap(err, apperr.Storage, "persist rain state")
		}
	}
	if c.executor.IsFault() {
		c.log.Warn("execution engine is in sticky FAULT state")
	}
	return nil
}

// Queue returns the shared task queue so callers (e.g. a remote
// command surface) can enqueue manual/remote tasks directly.
func (c *Core) Queue() *taskqueue.Queue { return c.queue }

// Executor returns the execution engine for direct pause/resume/cancel
// operations driven by an external command surface.
func (c *Core) Executor() *executor.Engine { return c.executor }

// Channel looks up a registered channel by id.
func (c *Core) Channel(id int) (*channel.Channel, bool) {
	ch, ok := c.channels[id]
	return ch, ok
}

// Run drives the core's worker loops until ctx is cancelled (spec §5
// concurrency model): scheduler at 1/min, execution engine at 1Hz,
// rain hour-boundary bookkeeping at 1/hour, housekeeping at 0.1Hz.
func (c *Core) Run(ctx context.Context, weatherSource func() envsnap.Snapshot) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.runTicker(ctx, SchedulerInterval, func(now time.Time) error {
			w := envsnap.Snapshot{}
			if weatherSource != nil {
				w = weatherSource()
			}
			c.TickScheduler(now, w)
			return nil
		})
	})

	g.Go(func() error {
		return c.runTicker(ctx, ExecutorInterval, func(now time.Time) error {
			if err := c.TickExecutor(now); err != nil {
				return err
			}
			return c.TickMasterValve(now)
		})
	})

	g.Go(func() error {
		return c.runTicker(ctx, RainHourBoundaryTick, func(now time.Time) error {
			if c.rain != nil {
				c.rain.HourBoundary(now)
			}
			return nil
		})
	})

	g.Go(func() error {
		return c.runTicker(ctx, HousekeepingInterval, func(time.Time) error {
			return c.TickHousekeeping()
		})
	})

	return g.Wait()
}

func (c *Core) runTicker(ctx context.Context, interval time.Duration, fn func(now time.Time) error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := fn(c.clk.Now()); err != nil {
				c.log.WithError(err).Warn("worker tick failed")
			}
		}
	}
}
