// Command lipahost loads catalogued engine modules and calls their exports.
//
//	lipahost -config lipa.yaml -greet Ada -step 0.016
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	abi "github.com/lipawealth/lipa-engine/api/wasm"
	"github.com/lipawealth/lipa-engine/internal/catalog"
	"github.com/lipawealth/lipa-engine/internal/config"
	"github.com/lipawealth/lipa-engine/internal/wasm"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config")
	moduleName := flag.String("module", "", "Module to call (default: first module exporting the operation)")
	list := flag.Bool("list", false, "List catalogued modules and their exports")
	var greet, announce optionalString
	flag.Var(&greet, "greet", "Call greet with this name (may be empty)")
	flag.Var(&announce, "announce", "Call announce with this name (may be empty)")
	var step optionalFloat
	flag.Var(&step, "step", "Call compute_physics_step with this time step")
	flag.Parse()

	cfg, err := config.LoadHostConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting lipahost",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Cancel in-flight calls on shutdown signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, request{
		module:   *moduleName,
		list:     *list,
		greet:    greet,
		announce: announce,
		step:     step,
	}); err != nil {
		logger.Error("lipahost failed", zap.Error(err))
		os.Exit(1)
	}
}

type request struct {
	module   string
	list     bool
	greet    optionalString
	announce optionalString
	step     optionalFloat
}

func run(ctx context.Context, cfg *config.HostConfig, logger *zap.Logger, req request) error {
	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:      cfg.Wasm.MemoryPages,
		DebugEnabled:     cfg.Wasm.Debug,
		CacheDir:         cfg.Wasm.CacheDir,
		MaxInstances:     cfg.Wasm.MaxInstances,
		ExecutionTimeout: cfg.Wasm.ExecutionTimeout,
	})
	if err != nil {
		return err
	}

	alerter := abi.AlerterFunc(func(_ context.Context, message string) {
		fmt.Printf("alert: %s\n", message)
	})
	manager := catalog.NewManager(cfg, runtime, wasm.NewHostFunctions(logger, alerter), logger)
	defer manager.Shutdown(context.Background())

	if err := manager.LoadAll(ctx); err != nil {
		return err
	}

	if req.list {
		for _, module := range manager.Registry().List() {
			fmt.Printf("%s %s (%s)\n", module.Name(), module.Version(), module.Compiled.Digest[:12])
			for _, sig := range module.Exports() {
				fmt.Printf("  %s\n", sig)
			}
		}
	}

	if req.greet.set {
		instance, err := instanceFor(ctx, manager, req.module, abi.ExportGreet)
		if err != nil {
			return err
		}
		greeting, err := instance.Greet(ctx, req.greet.value)
		if err != nil {
			return err
		}
		fmt.Println(greeting)
	}

	if req.step.set {
		instance, err := instanceFor(ctx, manager, req.module, abi.ExportComputePhysicsStep)
		if err != nil {
			return err
		}
		displacement, err := instance.ComputePhysicsStep(ctx, req.step.value)
		if err != nil {
			return err
		}
		fmt.Println(displacement)
	}

	if req.announce.set {
		instance, err := instanceFor(ctx, manager, req.module, abi.ExportAnnounce)
		if err != nil {
			return err
		}
		if err := instance.Announce(ctx, req.announce.value); err != nil {
			return err
		}
	}

	return nil
}

// instanceFor instantiates the named module, or the first module exporting
// operation when name is empty.
func instanceFor(ctx context.Context, manager *catalog.Manager, name, operation string) (*wasm.Instance, error) {
	if name == "" {
		module, err := manager.FindModuleForOperation(operation)
		if err != nil {
			return nil, err
		}
		name = module.Name()
	} else {
		module, err := manager.GetModule(name)
		if err != nil {
			return nil, err
		}
		if !module.Provides(operation) {
			return nil, errors.New(module.Name() + " does not export " + operation)
		}
	}
	return manager.Instantiate(ctx, name)
}

func newLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	// Results go to stdout.
	cfg.OutputPaths = []string{"stderr"}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}
