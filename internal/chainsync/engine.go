package chainsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// ErrSyncInProgress is returned when Sync is called while another Sync on
// the same engine is still running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Engine states and events.
const (
	StateIdle    = "idle"
	StateSyncing = "syncing"

	eventSync = "sync"
	eventDone = "done"
)

// Result summarizes one Sync call.
type Result struct {
	Tip            types.Hash
	Height         uint64
	Ancestor       types.Hash
	AncestorHeight uint64
	Reverted       uint64
	Applied        int
	Queries        int
}

// Engine synchronizes a Ledger with a ChainView.
type Engine struct {
	ledger Ledger
	state  *fsm.FSM
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the sync component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine driving ledger.
func New(ledger Ledger, opts ...Option) *Engine {
	InitPrometheusMetrics()

	e := &Engine{
		ledger: ledger,
		logger: log.Sync,
		state: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: eventSync, Src: []string{StateIdle}, Dst: StateSyncing},
				{Name: eventDone, Src: []string{StateSyncing}, Dst: StateIdle},
			},
			fsm.Callbacks{},
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current engine state.
func (e *Engine) State() string {
	return e.state.Current()
}

// Sync brings the ledger to view's best tip. All queries happen before the
// ledger is touched, so a query error or a cancelled ctx leaves the ledger
// as it was. A ledger write error while executing the plan stops at the
// last fully written block: the ledger is then on a prefix of either the
// old or the new chain, and the next Sync resumes from there. The engine
// has no fork choice of its own: it follows the node's best tip even onto
// a shorter chain.
func (e *Engine) Sync(ctx context.Context, view ChainView) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.state.Event(context.Background(), eventSync); err != nil {
		return nil, ErrSyncInProgress
	}
	defer e.state.Event(context.Background(), eventDone)

	start := time.Now()
	defer func() { prometheusSyncDuration.Observe(time.Since(start).Seconds()) }()

	cv := &countingView{view: view}
	plan, err := buildPlan(ctx, e.ledger, cv)
	prometheusQueries.Add(float64(cv.queries))
	if err != nil {
		prometheusSyncs.WithLabelValues("error").Inc()
		e.logger.Warn().Err(err).Int("queries", cv.queries).Msg("Sync aborted, ledger unchanged")
		return nil, err
	}

	res := &Result{
		Tip:            plan.Best,
		Height:         plan.BestHeight,
		Ancestor:       plan.Ancestor,
		AncestorHeight: plan.AncestorHeight,
		Reverted:       plan.Rollback,
		Applied:        plan.Apply(),
		Queries:        cv.queries,
	}
	if plan.Noop() {
		prometheusSyncs.WithLabelValues("noop").Inc()
		return res, nil
	}

	if err := e.execute(plan); err != nil {
		prometheusSyncs.WithLabelValues("error").Inc()
		return nil, err
	}

	switch {
	case plan.Rollback > 0 && plan.Apply() > 0:
		prometheusSyncs.WithLabelValues("reorg").Inc()
	case plan.Rollback > 0:
		prometheusSyncs.WithLabelValues("rollback").Inc()
	default:
		prometheusSyncs.WithLabelValues("advance").Inc()
	}
	if plan.Rollback > 0 {
		prometheusReorgs.Inc()
		e.logger.Info().
			Str("ancestor", plan.Ancestor.Short()).
			Uint64("ancestor_height", plan.AncestorHeight).
			Uint64("reverted", plan.Rollback).
			Int("applied", plan.Apply()).
			Str("tip", plan.Best.Short()).
			Msg("Chain reorganization")
	}
	e.logger.Debug().
		Str("tip", plan.Best.Short()).
		Uint64("height", plan.BestHeight).
		Int("queries", cv.queries).
		Msg("Synced")
	return res, nil
}

// execute undoes plan.Rollback blocks and applies the new branch oldest
// first.
func (e *Engine) execute(plan *Plan) error {
	for i := uint64(0); i < plan.Rollback; i++ {
		rec, err := e.ledger.UndoLastBlock()
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		prometheusBlocksReverted.Inc()
		e.logger.Debug().
			Str("block", rec.BlockHash.Short()).
			Uint64("height", rec.Height).
			Int("restored", len(rec.Spent)).
			Int("removed", len(rec.Created)).
			Msg("Reverted block")
	}

	for i := len(plan.apply) - 1; i >= 0; i-- {
		blk := plan.apply[i]
		rec, err := e.ledger.ApplyBlock(blk.id, blk.height, blk.txs)
		if err != nil {
			return fmt.Errorf("apply %s at %d: %w", blk.id, blk.height, err)
		}
		prometheusBlocksApplied.Inc()
		e.logger.Debug().
			Str("block", blk.id.Short()).
			Uint64("height", blk.height).
			Int("spent", len(rec.Spent)).
			Int("created", len(rec.Created)).
			Msg("Applied block")
	}
	return nil
}
