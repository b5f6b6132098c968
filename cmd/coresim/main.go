// Command coresim is the host-simulation entrypoint: it wires
// internal/config, the chosen kvstore backend, and a set of simulated
// valves/flow-meter standing in for the GPIO layer spec §1 puts out of
// scope, then drives pkg/core.Run until signalled to stop.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/alexmihai1804/autowatering/internal/clock"
	"github.com/alexmihai1804/autowatering/internal/config"
	"github.com/alexmihai1804/autowatering/internal/kvstore"
	"github.com/alexmihai1804/autowatering/internal/kvstore/filestore"
	"github.com/alexmihai1804/autowatering/internal/kvstore/pgstore"
	"github.com/alexmihai1804/autowatering/pkg/channel"
	"github.com/alexmihai1804/autowatering/pkg/core"
	"github.com/alexmihai1804/autowatering/pkg/envsnap"
	"github.com/alexmihai1804/autowatering/pkg/executor"
	"github.com/alexmihai1804/autowatering/pkg/rain"
)

const channelCount = 8

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to on-device settings)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	configureLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.KV)
	if err != nil {
		logrus.WithError(err).Fatal("open kv store")
	}
	defer store.Close()

	rainPipeline, err := rain.New(rain.DefaultConfig(0.2))
	if err != nil {
		logrus.WithError(err).Fatal("build rain pipeline")
	}
	if err := rainPipeline.LoadState(store); err != nil {
		logrus.WithError(err).Warn("no persisted rain state, starting fresh")
	}

	envAgg := envsnap.NewAggregator(24 * time.Hour)

	valves := make(map[int]executor.Valve, channelCount)
	simValves := make([]*simValve, channelCount)
	channels := make([]*channel.Channel, 0, channelCount)
	for id := 0; id < channelCount; id++ {
		v := &simValve{id: id}
		simValves[id] = v
		valves[id] = v
		channels = append(channels, &channel.Channel{
			ID:   id,
			Name: "",
			Event: channel.WateringEvent{
				Schedule: channel.Schedule{Kind: channel.ScheduleDaily},
				Mode:     channel.Mode{Kind: channel.ModeByDuration, DurationMinutes: 10},
				Start:    channel.StartTime{Hour: 6, Minute: 0},
			},
			Coverage: channel.Coverage{Kind: channel.CoverageArea, AreaM2: 1},
		})
	}
	master := &simValve{id: -1}
	flow := newSimFlowMeter(simValves, 450.0/3.6) // ~450 pulses/L at a plausible per-zone flow rate

	c, err := core.New(cfg, core.Deps{
		Clock:       clock.NewSystem(),
		Log:         logrus.StandardLogger(),
		Store:       store,
		MasterValve: master,
		Valves:      valves,
		Flow:        flow,
		Rain:        rainPipeline,
		Env:         envAgg,
	}, channels, defaultMonthClimatology())
	if err != nil {
		logrus.WithError(err).Fatal("wire core")
	}

	flowTicker := time.NewTicker(time.Second)
	defer flowTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-flowTicker.C:
				flow.Tick(time.Second)
			}
		}
	}()

	if cfg.Debug.Enabled {
		go serveDebug(cfg.Debug.Addr, c)
	}

	logrus.WithField("channels", channelCount).Info("coresim starting")
	if err := c.Run(ctx, envAgg.Snapshot); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Fatal("core run exited")
	}
	logrus.Info("coresim stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func configureLogging(cfg config.Logging) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{})
	}
}

func openStore(ctx context.Context, cfg config.KVBackend) (kvstore.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return pgstore.Open(ctx, cfg.DSN)
	default:
		return filestore.Open(cfg.Dir)
	}
}

func defaultMonthClimatology() [12]float64 {
	// rough temperate-climate ET0 mm/day fallback, used only when both
	// the realtime and daily estimators are unusable (spec §4.F).
	return [12]float64{1.5, 2.0, 3.0, 4.0, 5.0, 6.0, 6.5, 6.0, 4.5, 3.0, 1.8, 1.3}
}

func serveDebug(addr string, c *core.Core) {
	if addr == "" {
		addr = ":9090"
	}
	faultGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "autowatering_executor_fault",
		Help: "1 when the execution engine is in the sticky FAULT state.",
	}, func() float64 {
		if c.Executor().IsFault() {
			return 1
		}
		return 0
	})
	prometheus.MustRegister(faultGauge)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	logrus.WithField("addr", addr).Info("debug surface listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		logrus.WithError(err).Warn("debug server stopped")
	}
}

// simValve stands in for a solenoid's active-high push-pull GPIO line
// (spec §6); it only logs state transitions.
type simValve struct {
	id int

	mu   sync.Mutex
	open bool
}

func (v *simValve) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open = true
	logrus.WithField("valve", v.id).Debug("valve opened")
	return nil
}

func (v *simValve) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open = false
	logrus.WithField("valve", v.id).Debug("valve closed")
	return nil
}

func (v *simValve) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

// simFlowMeter accrues pulses proportional to however many zone valves
// are currently open, the host analogue of the hall-effect flow
// sensor's ISR (the sensor driver is out of scope per spec §1).
type simFlowMeter struct {
	mu               sync.Mutex
	pulses           uint64
	pulsesPerSecZone float64
	valves           []*simValve
}

func newSimFlowMeter(valves []*simValve, pulsesPerSecPerOpenZone float64) *simFlowMeter {
	return &simFlowMeter{valves: valves, pulsesPerSecZone: pulsesPerSecPerOpenZone}
}

func (m *simFlowMeter) Tick(dt time.Duration) {
	open := 0
	for _, v := range m.valves {
		if v.IsOpen() {
			open++
		}
	}
	if open == 0 {
		return
	}
	m.mu.Lock()
	m.pulses += uint64(float64(open) * m.pulsesPerSecZone * dt.Seconds())
	m.mu.Unlock()
}

func (m *simFlowMeter) TotalPulses() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulses
}
