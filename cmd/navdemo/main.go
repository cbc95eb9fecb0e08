// Command navdemo builds a nav mesh for a small sample scene, runs a path
// query and optionally writes a snapshot and serves metrics.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tilednav/common/logger"
	"tilednav/config"
	"tilednav/detour"
	"tilednav/generator"
)

func main() {
	_ = godotenv.Load(".env")

	configPath := flag.String("config", os.Getenv("NAVDEMO_CONFIG"), "YAML settings file")
	snapshotPath := flag.String("snapshot", "", "write a nav mesh snapshot to this file")
	objPath := flag.String("obj", "", "write the nav mesh as Wavefront OBJ to this file")
	metricsAddr := flag.String("metrics", os.Getenv("NAVDEMO_METRICS_ADDR"), "serve /metrics on this address and wait for a signal")
	from := flag.String("from", "-20,-20", "query start as x,z")
	to := flag.String("to", "20,20", "query end as x,z")
	flag.Parse()

	cfg := config.File{NavMesh: config.Default(), Log: logger.DefaultConfig()}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
	}
	if lvl := os.Getenv("NAVDEMO_LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log, &cfg.NavMesh, *from, *to, outputs{snapshot: *snapshotPath, obj: *objPath}, *metricsAddr); err != nil {
		log.Error("navdemo failed", zap.Error(err))
		os.Exit(1)
	}
}

type outputs struct {
	snapshot, obj string
}

func run(log *zap.Logger, settings *config.Settings, from, to string, out outputs, metricsAddr string) error {
	start, err := parseXZ(from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	end, err := parseXZ(to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	navMesh := detour.NewNavMesh(detour.WithLogger(log), detour.WithMetrics(detour.NewMetrics(reg)))
	gen := generator.New(settings, navMesh,
		generator.WithLogger(log),
		generator.WithMetrics(generator.NewMetrics(reg)))

	for id, geometry := range sampleScene() {
		gen.UpsertAffector(generator.AffectorID(id+1), geometry...)
	}
	for len(gen.Dirty()) > 0 {
		n := gen.Dispatch()
		if err := gen.Wait(); err != nil {
			return err
		}
		log.Info("generated tiles", zap.Int("count", n))
	}

	path, status, err := navMesh.FindPath(settings, start, end)
	if err != nil {
		return err
	}
	log.Info("path query",
		zap.Stringer("status", status),
		zap.Int("points", len(path)),
		zap.Float32("length", pathLength(path)))
	for i, p := range path {
		log.Debug("path point", zap.Int("index", i), zap.Float32("x", p[0]), zap.Float32("y", p[1]), zap.Float32("z", p[2]))
	}

	if out.snapshot != "" {
		if err := writeFile(out.snapshot, navMesh.Snapshot); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		log.Info("wrote snapshot", zap.String("path", out.snapshot))
	}
	if out.obj != "" {
		if err := writeFile(out.obj, navMesh.DumpObj); err != nil {
			return fmt.Errorf("obj: %w", err)
		}
		log.Info("wrote obj", zap.String("path", out.obj))
	}

	if metricsAddr != "" {
		return serveMetrics(log, reg, metricsAddr)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func serveMetrics(log *zap.Logger, reg *prometheus.Registry, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("serving metrics", zap.String("addr", addr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-sig:
	}
	return srv.Close()
}

func parseXZ(s string) (mgl32.Vec3, error) {
	var x, z float32
	if _, err := fmt.Sscanf(s, "%g,%g", &x, &z); err != nil {
		return mgl32.Vec3{}, err
	}
	return mgl32.Vec3{x, 0, z}, nil
}

func pathLength(points []mgl32.Vec3) float32 {
	var l float32
	for i := 1; i < len(points); i++ {
		l += points[i].Sub(points[i-1]).Len()
	}
	return l
}
