// Command asr-server runs the batched streaming ASR service: it loads
// configuration, constructs the engine and its model collaborators, and
// serves the WebSocket streaming and HTTP transcription endpoints until
// signalled to shut down. Grounded on the original implementation's main.rs
// (config load, per-module engine construction, warmup-before-serve) and on
// the teacher repo's graceful-shutdown idiom via golang.org/x/sync/errgroup.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/streamasr/internal/audio"
	"github.com/rapidaai/streamasr/internal/audio/codec"
	cfgpkg "github.com/rapidaai/streamasr/internal/config"
	"github.com/rapidaai/streamasr/internal/engine"
	"github.com/rapidaai/streamasr/internal/httpapi"
	"github.com/rapidaai/streamasr/internal/inference"
	"github.com/rapidaai/streamasr/internal/session"
	"github.com/rapidaai/streamasr/pkg/logging"
	"github.com/rapidaai/streamasr/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the server's TOML configuration file")
	flag.Parse()

	logger, flush, err := logging.NewApplicationLogger(logging.Options{Level: "info"})
	if err != nil {
		panic(err)
	}
	defer flush()

	if err := run(*configPath, logger); err != nil {
		logger.Errorw("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger logging.Logger) error {
	v, err := cfgpkg.InitConfig(configPath)
	if err != nil {
		return err
	}
	appCfg, err := cfgpkg.GetApplicationConfig(v)
	if err != nil {
		return err
	}

	logger = logger.With("instance", appCfg.InstanceName)

	// This deployment hosts exactly one named module; a fleet fronting
	// several models would construct one Engine per entry in appCfg.Modules
	// and route by path, but that routing layer is outside this engine
	// core's scope.
	var moduleName string
	var moduleCfg cfgpkg.ModuleConfig
	for name, m := range appCfg.Modules {
		moduleName, moduleCfg = name, m
		break
	}
	if moduleName == "" {
		return errNoModules
	}

	engCfg := engine.DefaultConfig(moduleCfg.BatchWidth, moduleCfg.AsrDelayInTokens)
	engCfg.Temperature = moduleCfg.Temperature
	engCfg.LogFrequencySeconds = moduleCfg.LogFrequencySeconds
	// HasConditioningDelay must mirror moduleCfg.ConditioningDelay's presence
	// exactly, not just turn on when set: config.GetApplicationConfig already
	// enforces the XOR against ConditioningLearntPadding at the TOML layer,
	// and engine.Config.Validate re-enforces the same XOR here, so both
	// fields must come from moduleCfg rather than DefaultConfig's stand-in.
	engCfg.HasConditioningDelay = moduleCfg.ConditioningDelay != nil
	if moduleCfg.ConditioningDelay != nil {
		engCfg.ConditioningDelay = *moduleCfg.ConditioningDelay
	}
	engCfg.ConditioningLearntPadding = moduleCfg.ConditioningLearntPadding

	var logSink *engine.LogSink
	if moduleCfg.LogFrequencySeconds > 0 {
		stepsPerSecond := 1000.0 / float64(audio.FrameDurationMs)
		everyStep := uint64(moduleCfg.LogFrequencySeconds * stepsPerSecond)
		logSink, err = engine.NewLogSink(appCfg.LogDir, appCfg.InstanceName, everyStep, engCfg, logger)
		if err != nil {
			return err
		}
	}

	dtype, err := engine.ResolveComputeDType(moduleCfg.DTypeOverride, engine.AcceleratorCaps{ComputeCapabilityMajor: 8})
	if err != nil {
		return err
	}
	logger.Infow("resolved compute dtype", "module", moduleName, "dtype", dtype)

	model := inference.NewNoopModel()
	reg := prometheus.NewRegistry()
	eng, err := engine.New(engCfg, model, model, model, reg, logSink, logger)
	if err != nil {
		return err
	}

	if appCfg.Warmup {
		warmCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		eng.Warmup(warmCtx)
		cancel()
	} else if eng.Metrics() != nil {
		eng.Metrics().WarmupSkipped.Inc()
	}

	var verifier session.Verifier
	if !appCfg.Auth.Skip {
		verifier = session.NewJWTVerifier([]byte(appCfg.Auth.Secret))
	}

	var limiter ratelimit.Limiter
	if appCfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: appCfg.RedisAddr})
		limiter = ratelimit.NewRedisLimiter(client, 20, 40)
	} else {
		limiter = ratelimit.NewInMemoryLimiter(20, 40)
	}

	deps := httpapi.Deps{
		Engine:     eng,
		SessionCfg: session.DefaultConfig(),
		Verifier:   verifier,
		Limiter:    limiter,
		DecoderFn: func() (codec.Decoder, error) {
			return codec.NewOpusDecoder(audio.SampleRateHz, 1920)
		},
		Registry: reg,
		Logger:   logger,
		AuthSkip: appCfg.Auth.Skip,
	}
	router := httpapi.NewRouter(deps)

	srv := &http.Server{Addr: appCfg.ListenAddr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eng.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infow("listening", "addr", appCfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errNoModules = sentinelError("config: no modules configured")
