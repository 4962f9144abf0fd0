// Package dispatcher fans a job's chunks out across a pool of node
// connections, each bounded by its own concurrency slot count, with
// at-least-once delivery, bounded re-queue on failure, and deterministic
// ordered reassembly (spec.md §4.2).
package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// DefaultMaxAttempts bounds how many times a chronically failing chunk is
// re-queued before the dispatcher gives up on it (spec.md §9's open
// question, resolved per DESIGN.md).
const DefaultMaxAttempts = 10

// Logger is the minimal logging surface the dispatcher needs; satisfied
// by both *logging.Logger (client) and a no-op in tests.
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
}

type nullLogger struct{}

func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Debug(string, ...any) {}

// Config configures one dispatcher run.
type Config struct {
	EncodedChunksDir string
	MaxAttempts      int
	Logger           Logger

	// OnProgress, if set, is called after every settled chunk (completed,
	// re-queued, or exhausted) with the current completed/total counts and
	// the running count of failed attempts across all chunks.
	OnProgress func(completed, total, failedAttempts int)
}

// Dispatcher owns the shared queue and the pool of node connections for
// one job.
type Dispatcher struct {
	nodes []*NodeConnection
	queue *Queue
	cfg   Config
}

// New builds a dispatcher for the given chunks and node pool.
func New(nodes []*NodeConnection, chunks []swarm.Chunk, cfg Config) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = nullLogger{}
	}

	return &Dispatcher{
		nodes: nodes,
		queue: NewQueue(chunks, cfg.MaxAttempts),
		cfg:   cfg,
	}
}

// Run dispatches every chunk, blocking until every node worker has
// terminated (spec.md §4.2 "Completion"). It returns the completed chunks
// sorted ascending by index. If any chunk exhausted its attempt budget,
// or the post-condition |completed| == total otherwise fails to hold, Run
// returns a descriptive error alongside whatever completed successfully.
func (d *Dispatcher) Run(ctx context.Context) ([]swarm.Chunk, error) {
	if len(d.nodes) == 0 {
		return nil, fmt.Errorf("no node connections configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, node := range d.nodes {
		node := node
		g.Go(func() error {
			return d.runNode(gctx, node)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	completed, failed := d.queue.Snapshot()
	sort.Slice(completed, func(i, j int) bool { return completed[i].Index < completed[j].Index })

	if len(failed) > 0 {
		indexes := make([]int, len(failed))
		for i, c := range failed {
			indexes[i] = c.Index
		}
		return completed, fmt.Errorf("%d chunk(s) exhausted their attempt budget (%d attempts): indexes %v", len(failed), d.cfg.MaxAttempts, indexes)
	}

	total := d.queue.Total()
	if len(completed) != total {
		return completed, fmt.Errorf("dispatcher finished without error but completed %d/%d chunks", len(completed), total)
	}

	return completed, nil
}

// runNode is one node's worker loop (spec.md §4.2 "Per-node worker protocol").
func (d *Dispatcher) runNode(ctx context.Context, node *NodeConnection) error {
	var wg sync.WaitGroup
	var inFlight atomic.Int64
	settled := make(chan struct{}, 1)

	for {
		if err := node.acquire(ctx); err != nil {
			wg.Wait()
			return err
		}

		// Read before Pop: a sub-task re-queues its chunk before it stops
		// counting as in flight, so an empty queue seen while idle stays empty.
		idle := inFlight.Load() == 0
		chunk, ok := d.queue.Pop()
		if !ok {
			node.release()
			if idle {
				break
			}
			<-settled // a sub-task still in flight may re-queue its chunk
			continue
		}

		inFlight.Add(1)
		wg.Add(1)
		go func(chunk swarm.Chunk) {
			defer wg.Done()
			defer node.release()
			d.sendAndSettle(ctx, node, chunk)
			inFlight.Add(-1)
			select {
			case settled <- struct{}{}:
			default:
			}
		}(chunk)
	}

	wg.Wait()
	return nil
}

// sendAndSettle issues the RPC for one chunk and settles it into the
// completed, re-queued, or failed bucket (spec.md §4.2 steps 3a-3e).
func (d *Dispatcher) sendAndSettle(ctx context.Context, node *NodeConnection, chunk swarm.Chunk) {
	result, err := sendChunkForEncoding(ctx, node, chunk, d.cfg.EncodedChunksDir)
	if err != nil {
		if d.queue.Requeue(chunk) {
			d.cfg.Logger.Debug("chunk %d failed on %s, re-queued (attempt %d): %v", chunk.Index, node.Address, chunk.Attempts+1, err)
		} else {
			d.cfg.Logger.Info("chunk %d exhausted its attempt budget on %s: %v", chunk.Index, node.Address, err)
		}
		d.reportProgress()
		return
	}

	d.queue.Complete(result)
	d.cfg.Logger.Debug("chunk %d encoded by %s", chunk.Index, node.Address)
	d.reportProgress()
}

func (d *Dispatcher) reportProgress() {
	if d.cfg.OnProgress == nil {
		return
	}
	completed, failedAttempts := d.queue.Counts()
	d.cfg.OnProgress(completed, d.queue.Total(), failedAttempts)
}
