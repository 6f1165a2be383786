package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/fretsense/internal/app"
	"github.com/ayusman/fretsense/internal/cache"
	"github.com/ayusman/fretsense/internal/config"
	"github.com/ayusman/fretsense/internal/detector"
	"github.com/ayusman/fretsense/internal/events"
	"github.com/ayusman/fretsense/internal/fingering"
	"github.com/ayusman/fretsense/internal/logging"
	"github.com/ayusman/fretsense/internal/server"
	"github.com/ayusman/fretsense/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Server.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("fretsense stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("FretSense - guitar chord practice backend")

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.Data.DatabasePath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	lib, err := loadLibrary(cfg.Data.ChordsDir, log)
	if err != nil {
		return err
	}

	detCfg := detector.Config{
		ModelPath:         cfg.Detector.ModelPath,
		SharedLibraryPath: cfg.Detector.SharedLibraryPath,
		InputSize:         cfg.Detector.InputSize,
		MinConfidence:     cfg.Detector.MinConfidence,
		IoUThreshold:      cfg.Detector.IoUThreshold,
		NearClass:         cfg.Detector.NearClass,
		FarClass:          cfg.Detector.FarClass,
	}

	// Try the ONNX model first, fall back to a detector that finds nothing
	var frets detector.FretDetector
	if onnx, err := detector.NewOnnxDetector(detCfg); err == nil {
		frets = onnx
		log.Info("using ONNX fret detection", zap.String("model", detCfg.ModelPath))
	} else {
		log.Warn("fret model not available, using mock detector", zap.Error(err))
		frets = detector.NewMockDetector()
	}

	var hands detector.HandDetector
	if cfg.Hands.Enabled {
		mp, err := detector.NewMediaPipeDetector(detector.HandConfig{
			ScriptPath:  cfg.Hands.ScriptPath,
			PythonPath:  cfg.Hands.PythonPath,
			IdleTimeout: cfg.Hands.IdleTimeout,
		}, log)
		if err != nil {
			log.Warn("hand detection not available", zap.Error(err))
		} else {
			hands = mp
			log.Info("using MediaPipe hand detection")
		}
	}

	var lockCache *cache.LockCache
	if cfg.Redis.Enabled {
		lockCache = cache.New(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, log)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := lockCache.Ping(ctx)
		cancel()
		if err != nil {
			log.Warn("redis unreachable, lock cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			lockCache.Close()
			lockCache = nil
		} else {
			defer lockCache.Close()
			log.Info("lock cache enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled() {
		kp, err := events.NewKafkaPublisher(events.KafkaConfig{
			BootstrapServers: cfg.Kafka.BootstrapServers,
			Topic:            cfg.Kafka.Topic,
			SecurityProtocol: cfg.Kafka.SecurityProtocol,
			SASLMechanism:    cfg.Kafka.SASLMechanism,
			SASLUsername:     cfg.Kafka.SASLUsername,
			SASLPassword:     cfg.Kafka.SASLPassword,
			Acks:             cfg.Kafka.Acks,
			MaxRetries:       cfg.Kafka.MaxRetries,
			FlushTimeout:     cfg.Kafka.FlushTimeout,
		}, log)
		if err != nil {
			log.Warn("kafka unavailable, events disabled", zap.Error(err))
		} else {
			publisher = kp
		}
	}

	a, err := app.New(app.Config{
		Library:        lib,
		Store:          st,
		Frets:          frets,
		Hands:          hands,
		DetectorConfig: detCfg,
		Cache:          lockCache,
		Publisher:      publisher,
		Logger:         log,
		MaxConcurrent:  cfg.Detector.MaxConcurrent,
		QueueTimeout:   cfg.Detector.QueueTimeout,
	})
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("error during shutdown", zap.Error(err))
		}
	}()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		log.Info("serving static files", zap.String("dir", staticDir))
	}

	srv := server.New(server.Config{
		StaticDir:      staticDir,
		App:            a,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		DefaultChord:   cfg.Server.DefaultChord,
	})
	httpServer := server.NewHTTPServer(cfg.Server.Port, srv, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", cfg.Server.Port), zap.String("mode", cfg.Server.Mode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// loadLibrary reads the chord directory. A missing directory yields an
// empty library so trained chords can still be served.
func loadLibrary(dir string, log *zap.Logger) (*fingering.Library, error) {
	lib, err := fingering.LoadLibrary(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("chord directory not found", zap.String("dir", dir))
			return fingering.NewLibrary()
		}
		return nil, fmt.Errorf("load chords: %w", err)
	}

	log.Info("loaded chords", zap.String("dir", dir), zap.Strings("chords", lib.Names()))
	return lib, nil
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.fretsense/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".fretsense", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
