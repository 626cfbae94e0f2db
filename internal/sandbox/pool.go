package sandbox

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"autoengineer/internal/logging"

	"golang.org/x/sync/errgroup"
)

// PoolConfig bounds a session pool.
type PoolConfig struct {
	MaxSessions  int
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// DefaultPoolConfig returns sensible pool limits.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSessions:  4,
		IdleTimeout:  15 * time.Minute,
		ReapInterval: time.Minute,
	}
}

// Pool hands out one persistent session per key.
type Pool struct {
	mu       sync.Mutex
	sb       *PodmanSandbox
	cfg      PoolConfig
	sessions map[string]*Session
	starting map[string]chan struct{} // keys whose container is being created
	closed   bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewPool creates a pool. Call Start to enable idle reaping.
func NewPool(sb *PodmanSandbox, cfg PoolConfig) *Pool {
	d := DefaultPoolConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = d.MaxSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = d.IdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = d.ReapInterval
	}
	return &Pool{
		sb:       sb,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		starting: make(map[string]chan struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the idle reaper. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go p.reapLoop()
}

func (p *Pool) reapLoop() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			p.reapIdle(ctx, time.Now())
			cancel()
		}
	}
}

// reapIdle removes sessions idle longer than IdleTimeout.
func (p *Pool) reapIdle(ctx context.Context, now time.Time) int {
	p.mu.Lock()
	var idle []*Session
	for key, sess := range p.sessions {
		if sess.idleSince(now) > p.cfg.IdleTimeout {
			idle = append(idle, sess)
			delete(p.sessions, key)
		}
	}
	p.mu.Unlock()

	for _, sess := range idle {
		logging.Sandbox("reaping idle session %s", sess.name)
		if err := sess.Close(ctx); err != nil {
			logging.SandboxWarn("reap %s: %v", sess.name, err)
		}
	}
	return len(idle)
}

// Acquire returns the session for key, creating it when absent. The
// container is created outside the pool lock; a slot is reserved for it
// meanwhile, and concurrent callers for the same key wait for that start.
func (p *Pool) Acquire(ctx context.Context, key string) (*Session, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if sess, ok := p.sessions[key]; ok {
			if sess.Info().State == SessionRunning {
				p.mu.Unlock()
				sess.Touch()
				return sess, nil
			}
			delete(p.sessions, key)
		}
		if wait, ok := p.starting[key]; ok {
			p.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if len(p.sessions)+len(p.starting) >= p.cfg.MaxSessions {
			p.mu.Unlock()
			return nil, ErrPoolExhausted
		}
		done := make(chan struct{})
		p.starting[key] = done
		p.mu.Unlock()

		return p.startSession(ctx, key, done)
	}
}

func (p *Pool) startSession(ctx context.Context, key string, done chan struct{}) (*Session, error) {
	sess, err := p.sb.StartSession(ctx, key)

	p.mu.Lock()
	delete(p.starting, key)
	close(done)
	closed := p.closed
	if err == nil && !closed {
		p.sessions[key] = sess
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if closed {
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := sess.Close(cctx); err != nil {
			logging.SandboxWarn("close %s started during pool shutdown: %v", sess.name, err)
		}
		return nil, ErrPoolClosed
	}
	return sess, nil
}

// Release marks the session for key as used now.
func (p *Pool) Release(key string) {
	p.mu.Lock()
	sess, ok := p.sessions[key]
	p.mu.Unlock()
	if ok {
		sess.Touch()
	}
}

// Remove closes and forgets the session for key.
func (p *Pool) Remove(ctx context.Context, key string) error {
	p.mu.Lock()
	sess, ok := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Close(ctx)
}

// Len returns the number of live sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Sessions returns snapshots sorted by key.
func (p *Pool) Sessions() []SessionInfo {
	p.mu.Lock()
	infos := make([]SessionInfo, 0, len(p.sessions))
	for _, sess := range p.sessions {
		infos = append(infos, sess.Info())
	}
	p.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Close stops the reaper and removes every session concurrently.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	started := p.started
	sessions := make([]*Session, 0, len(p.sessions))
	for _, sess := range p.sessions {
		sessions = append(sessions, sess)
	}
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stopCh) })
	if started {
		<-p.doneCh
	}

	var (
		errMu sync.Mutex
		errs  []error
	)
	var g errgroup.Group
	g.SetLimit(4)
	for _, sess := range sessions {
		g.Go(func() error {
			if err := sess.Close(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
