// Package engine runs sync passes over a root: it computes the local and
// remote deltas, merges them, hands each decision to an executor and records
// accepted outcomes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/deltasync/internal/delta"
	"github.com/openmined/deltasync/internal/remote"
	"github.com/openmined/deltasync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// CursorStore keeps the remote change cursor of each provider.
type CursorStore interface {
	GetCursor(provider string) (string, error)
	SetCursor(provider, cursor string) error
}

// Store is the persistence an engine needs.
type Store interface {
	delta.StateStore
	CursorStore
}

type Options struct {
	Root      string
	Store     Store
	Source    remote.Source
	Hasher    *delta.Hasher
	Ignore    *delta.IgnoreList
	Direction Direction
	Clock     func() time.Time
}

type Engine struct {
	root       string
	store      Store
	source     remote.Source
	calculator *delta.LocalCalculator
	applier    *delta.Applier
	ignore     *delta.IgnoreList
	direction  Direction
	lock       *RootLock
	now        func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: state store is required")
	}
	root, err := utils.ResolvePath(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve root: %w", err)
	}
	if !utils.DirExists(root) {
		return nil, fmt.Errorf("engine: %s: %w", root, delta.ErrRootNotDir)
	}

	source := opts.Source
	if source == nil {
		source = remote.NoopSource{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	ignore := opts.Ignore
	if ignore == nil {
		ignore = delta.NewIgnoreList(root)
	}

	return &Engine{
		root:   root,
		store:  opts.Store,
		source: source,
		calculator: delta.NewLocalCalculator(opts.Store, opts.Hasher,
			delta.WithIgnore(ignore),
			delta.WithClock(now),
		),
		applier:   delta.NewApplier(opts.Store),
		ignore:    ignore,
		direction: opts.Direction,
		lock:      NewRootLock(root),
		now:       now,
	}, nil
}

func (e *Engine) Root() string {
	return e.root
}

func (e *Engine) Source() remote.Source {
	return e.source
}

// Plan computes a plan while holding the root lock.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	if err := e.lock.Lock(); err != nil {
		return nil, err
	}
	defer e.unlock()
	return e.plan(ctx)
}

func (e *Engine) plan(ctx context.Context) (*Plan, error) {
	tstart := time.Now()
	p := &Plan{
		ID:        uuid.NewString(),
		Root:      e.root,
		Provider:  e.source.Name(),
		Direction: e.direction,
		CreatedAt: e.now(),
	}

	cursor, err := e.store.GetCursor(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		local, err := e.calculator.Calculate(e.root)
		if err != nil {
			return err
		}
		p.Local = local
		return nil
	})
	g.Go(func() error {
		entries, newCursor, err := remote.Collect(gctx, e.source, cursor)
		if err != nil {
			return err
		}
		p.Remote = e.dropIgnored(entries)
		p.Cursor = newCursor
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	p.Merged = e.direction.Filter(delta.Merge(p.Local, p.Remote))

	slog.Info("plan ready",
		"id", p.ID,
		"root", e.root,
		"provider", p.Provider,
		"local", len(p.Local),
		"remote", len(p.Remote),
		"pending", len(p.Pending()),
		"conflicts", len(p.Conflicts()),
		"took", time.Since(tstart),
	)
	return p, nil
}

func (e *Engine) dropIgnored(entries []delta.DeltaEntry) []delta.DeltaEntry {
	kept := entries[:0]
	for _, entry := range entries {
		if e.ignore.ShouldIgnore(entry.Path, entry.IsDir) {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

// Failure is a decision the executor could not carry out.
type Failure struct {
	Path   string             `json:"path" yaml:"path"`
	Action delta.MergedAction `json:"action" yaml:"action"`
	Err    error              `json:"-" yaml:"-"`
	Error  string             `json:"error" yaml:"error"`
}

// Result summarizes a Run.
type Result struct {
	Plan        *Plan     `json:"plan" yaml:"plan"`
	Applied     int       `json:"applied" yaml:"applied"`
	Skipped     int       `json:"skipped" yaml:"skipped"`
	Failed      []Failure `json:"failed,omitempty" yaml:"failed,omitempty"`
	CursorSaved bool      `json:"cursor_saved" yaml:"cursor_saved"`
}

// Run performs one pass: plan, execute every pending decision and record the
// accepted outcomes. Executor failures are collected per path and leave that
// path's state untouched; a failure to record state aborts the pass.
//
// The remote cursor is saved only when every decision was carried out, so a
// failed path is reported again by the next pass.
func (e *Engine) Run(ctx context.Context, exec Executor) (*Result, error) {
	if exec == nil {
		return nil, errors.New("run: executor is required")
	}
	if err := e.lock.Lock(); err != nil {
		return nil, err
	}
	defer e.unlock()

	p, err := e.plan(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Plan: p}
	for _, md := range p.Merged {
		if md.Action == delta.MergeNone {
			res.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		out, err := exec.Execute(ctx, md)
		if err != nil {
			slog.Warn("execute failed", "path", md.Path, "action", md.Action, "error", err)
			res.Failed = append(res.Failed, Failure{Path: md.Path, Action: md.Action, Err: err, Error: err.Error()})
			continue
		}
		if out == nil {
			res.Skipped++
			continue
		}

		if err := e.applier.Apply(out.Delta, out.State); err != nil {
			return res, fmt.Errorf("run: %w", err)
		}
		res.Applied++
	}

	if len(res.Failed) == 0 && p.Cursor != "" {
		if err := e.store.SetCursor(p.Provider, p.Cursor); err != nil {
			return res, fmt.Errorf("run: save cursor: %w", err)
		}
		res.CursorSaved = true
	}

	slog.Info("pass done", "id", p.ID, "applied", res.Applied, "skipped", res.Skipped, "failed", len(res.Failed), "cursor_saved", res.CursorSaved)
	return res, nil
}

// Watch plans once, then again whenever triggers fires or interval elapses,
// until ctx is done. A zero interval disables periodic planning. Plans that
// fail because another process holds the root are reported and retried later.
func (e *Engine) Watch(ctx context.Context, triggers <-chan struct{}, interval time.Duration, onPlan func(*Plan, error)) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	onPlan(e.Plan(ctx))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-triggers:
			if !ok {
				return nil
			}
		case <-tick:
		}
		onPlan(e.Plan(ctx))
	}
}

func (e *Engine) unlock() {
	if err := e.lock.Unlock(); err != nil {
		slog.Warn("root unlock", "root", e.root, "error", err)
	}
}
