package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"autoengineer/internal/config"
	"autoengineer/internal/logging"
	"autoengineer/internal/sandbox"
	"autoengineer/internal/store"
	"autoengineer/internal/tools"
	"autoengineer/internal/tools/files"
	"autoengineer/pkg/toolkit"
)

// appEnv is everything a command needs, resolved from flags and config.
type appEnv struct {
	root    string
	cfgPath string
	cfg     *config.Config
	ws      *files.Workspace
	sb      *sandbox.PodmanSandbox
	store   *store.ToolStore
	reg     *tools.Registry
}

type envOptions struct {
	sandbox bool // detect podman and register the execution tools
	store   bool // open the history store (when enabled in config)
}

// openEnv resolves the workspace, loads config, initializes category logging
// and opens what opts asks for.
func openEnv(opts envOptions) (*appEnv, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := workspace
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root, err := config.FindWorkspaceRoot(cwd)
		if err != nil {
			return nil, err
		}
		dir = root
	}

	initial, err := files.NewWorkspace(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	root := initial.Root()

	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.DefaultPath(root)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	if err := logging.Initialize(root, cfg.ToLoggingOptions()); err != nil {
		logger.Warn("Category logging disabled", zap.Error(err))
	}
	logging.Boot("workspace %s (config %s)", root, cfgPath)

	env := &appEnv{root: root, cfgPath: cfgPath, cfg: cfg}
	if env.ws, err = files.NewWorkspace(root, cfg.FilesOptions()...); err != nil {
		return nil, err
	}

	if opts.sandbox {
		env.sb = sandbox.NewPodmanSandbox(cfg.ToSandboxOptions(root))
		if !env.sb.IsAvailable() {
			logger.Warn("podman is not available; sandbox tools will fail", zap.String("podman_path", cfg.Sandbox.PodmanPath))
			logging.BootWarn("podman unavailable; sandbox tools registered but will fail")
		} else {
			logging.BootDebug("podman %s, image %s", env.sb.Version(), cfg.Sandbox.Image)
		}
	}

	if env.reg, err = toolkit.NewToolRegistry(env.ws, env.sb); err != nil {
		logging.BootError("tool registry: %v", err)
		return nil, err
	}
	logging.Tools("registered %d tools", env.reg.Count())

	if opts.store && cfg.Store.Enabled {
		path := cfg.StorePath(root)
		st, err := store.NewToolStore(path)
		if err != nil {
			// History is best effort; tools still work without it.
			logger.Warn("History store unavailable", zap.String("path", path), zap.Error(err))
			logging.StoreWarn("history disabled for this run: %v", err)
		} else {
			env.store = st
			env.reg.SetRecorder(st)
		}
	}

	logger.Debug("Environment ready",
		zap.String("workspace", root),
		zap.String("config", cfgPath),
		zap.Int("tools", env.reg.Count()),
		zap.Bool("store", env.store != nil))
	return env, nil
}

// requireStore returns the history store or an error explaining why it is missing.
func (e *appEnv) requireStore() (*store.ToolStore, error) {
	if e.store != nil {
		return e.store, nil
	}
	if !e.cfg.Store.Enabled {
		return nil, errors.New("history store is disabled (store.enabled: false)")
	}
	return nil, fmt.Errorf("history store at %s could not be opened", e.cfg.StorePath(e.root))
}

func (e *appEnv) Close() error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Close(); err != nil {
		logging.StoreWarn("close history store: %v", err)
		return err
	}
	return nil
}

// commandContext bounds cmd's context by the global timeout.
func commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
