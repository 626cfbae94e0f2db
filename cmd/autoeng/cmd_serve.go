package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autoengineer/internal/config"
	"autoengineer/internal/logging"
	"autoengineer/internal/sandbox"
	"autoengineer/internal/tools"
	"autoengineer/internal/tools/files"
	"autoengineer/internal/tools/shell"
	"autoengineer/pkg/toolkit"
)

const maxRequestBytes = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tool calls as JSON lines on stdin/stdout",
	Long: `Reads one JSON request per line from stdin and writes one JSON response
per line to stdout:

  {"id":"1","tool":"read_file","args":{"path":"go.mod"}}
  {"id":"1","result":"module ...","duration_ms":0}

Requests that carry a session and call run_in_sandbox run inside a persistent
container kept for that session. The config file is watched and reloaded.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

type serveRequest struct {
	ID      string         `json:"id"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
	Session string         `json:"session,omitempty"`
}

type serveResponse struct {
	ID         string `json:"id"`
	Result     string `json:"result"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// server dispatches requests to the current registry. A config reload swaps
// the workspace, sandbox and registry; the session pool lives for the whole run.
type server struct {
	mu    sync.RWMutex
	env   *appEnv
	pool  *sandbox.Pool
	audit *sandbox.AuditLogger
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := openEnv(envOptions{sandbox: true, store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(env)
	defer srv.close()

	if env.store != nil {
		stats, err := env.store.Cleanup(ctx, env.cfg.ToCleanupConfig())
		if err != nil {
			logger.Warn("History cleanup failed", zap.Error(err))
		} else if n := stats.ExecutionsDeleted(); n > 0 {
			logger.Info("Pruned history", zap.Int64("expired", stats.ExpiredDeleted), zap.Int64("overflow", stats.OverflowDeleted))
		}
	}

	watcher, err := config.NewWatcher(env.cfgPath, srv.reload)
	if err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("Config watcher failed to start", zap.Error(err))
		}
	}

	logger.Info("Serving tool calls",
		zap.String("workspace", env.root),
		zap.Strings("tools", env.reg.Names()))

	err = srv.serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())

	snap := srv.audit.Metrics().Snapshot()
	logger.Info("Sandbox metrics",
		zap.Int64("total", snap.Total),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("non_zero_exits", snap.NonZeroExits),
		zap.Int64("killed", snap.Killed),
		zap.Int64("errors", snap.Errors),
		zap.Duration("avg_duration", snap.AvgDuration))
	return err
}

func newServer(env *appEnv) *server {
	srv := &server{env: env, audit: sandbox.NewAuditLogger()}
	if err := srv.audit.EnableFileLogging(filepath.Join(env.root, config.DirName, "audit.jsonl")); err != nil {
		logger.Warn("Audit file disabled", zap.Error(err))
	}
	if env.sb != nil {
		env.sb.SetAuditCallback(srv.audit.Log)
		srv.pool = sandbox.NewPool(env.sb, env.cfg.ToPoolConfig())
		srv.pool.Start()
	}
	return srv
}

func (s *server) close() {
	if s.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.pool.Close(ctx); err != nil {
			logger.Warn("Failed to close sessions", zap.Error(err))
		}
	}
	_ = s.audit.Close()
}

// reload rebuilds the workspace, sandbox and registry from a changed config.
// An invalid config keeps the running one.
func (s *server) reload(cfg *config.Config, err error) {
	if err != nil {
		logger.Warn("Ignoring config change", zap.Error(err))
		return
	}

	s.mu.RLock()
	old := s.env
	s.mu.RUnlock()

	ws, err := files.NewWorkspace(old.root, cfg.FilesOptions()...)
	if err != nil {
		logger.Warn("Ignoring config change", zap.Error(err))
		return
	}
	sb := sandbox.NewPodmanSandbox(cfg.ToSandboxOptions(old.root))
	sb.SetAuditCallback(s.audit.Log)

	reg, err := toolkit.NewToolRegistry(ws, sb)
	if err != nil {
		logger.Warn("Ignoring config change", zap.Error(err))
		return
	}
	if old.store != nil {
		reg.SetRecorder(old.store)
	}
	logging.Configure(cfg.ToLoggingOptions())

	s.mu.Lock()
	s.env = &appEnv{
		root:    old.root,
		cfgPath: old.cfgPath,
		cfg:     cfg,
		ws:      ws,
		sb:      sb,
		store:   old.store,
		reg:     reg,
	}
	s.mu.Unlock()
	logger.Info("Config reloaded", zap.String("path", old.cfgPath))
}

// serve handles requests in order until r is exhausted or ctx is done.
func (s *server) serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	enc := json.NewEncoder(w)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read request: %w", err)
					}
				default:
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}
			if err := enc.Encode(s.handle(ctx, line)); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

func (s *server) handle(ctx context.Context, line []byte) serveResponse {
	var req serveRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return serveResponse{Error: fmt.Sprintf("invalid request: %v", err)}
	}
	resp := serveResponse{ID: req.ID}
	if req.Tool == "" {
		resp.Error = "invalid request: tool is required"
		return resp
	}

	s.mu.RLock()
	env := s.env
	s.mu.RUnlock()

	if req.Session != "" {
		ctx = tools.WithSession(ctx, req.Session)
	}

	var res *tools.ToolResult
	var err error
	if req.Session != "" && req.Tool == "run_in_sandbox" && s.pool != nil {
		res, err = s.runInSession(ctx, env, req)
	} else {
		res, err = env.reg.Execute(ctx, req.Tool, req.Args)
	}

	if res != nil {
		resp.Result = res.Result
		resp.DurationMs = res.DurationMs
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// runInSession runs the command in the session's persistent container.
func (s *server) runInSession(ctx context.Context, env *appEnv, req serveRequest) (*tools.ToolResult, error) {
	sess, err := s.pool.Acquire(ctx, req.Session)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", req.Session, err)
	}
	defer s.pool.Release(req.Session)

	return env.reg.ExecuteTool(ctx, shell.RunInSandboxTool(sess, env.ws), req.Args)
}
