// Package batch executes bulk independent work items in consecutive
// fixed-size chunks. Chunking bounds how much transient per-item state is
// live at once; the executor yields between chunks so a large batch never
// monopolizes the scheduler or holds the whole request's scratch memory
// simultaneously.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// EventType identifies a progress event emitted during batch execution.
type EventType string

// EventType constants
const (
	EventBatchStart    EventType = "batch_start"
	EventChunkStart    EventType = "chunk_start"
	EventChunkComplete EventType = "chunk_complete"
	EventBatchComplete EventType = "batch_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType   EventType
	ChunkNum    int // 1-based
	TotalChunks int
	Processed   int
	Failed      int
	TotalItems  int
}

// ProgressListener receives progress events during batch execution.
type ProgressListener func(ProgressEvent)

// Item is one unit of work inside a batch. Kind selects how the processor
// interprets Payload, which arrives as a decoded JSON object.
type Item struct {
	ID      string         `json:"id,omitempty"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

// Result is the outcome slot for the item at the same position in the
// submitted batch. Err is set only for that item's failure; it never
// reflects the state of its neighbors.
type Result struct {
	Index int
	Value any
	Err   error
}

// Processor handles a single work item. A returned error fails that item's
// result slot and nothing else.
type Processor interface {
	Process(ctx context.Context, item Item) (any, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, item Item) (any, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, item Item) (any, error) {
	return f(ctx, item)
}

// BatchTooLargeError rejects a batch whose item count exceeds the hard
// maximum. No item has been processed when it is returned.
type BatchTooLargeError struct {
	Count int
	Limit int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d items exceeds the maximum of %d", e.Count, e.Limit)
}

// Defaults applied by New when Config leaves the knobs zero.
const (
	DefaultChunkSize = 25
	DefaultMaxItems  = 500
)

// Config holds the executor tuning knobs.
type Config struct {
	// ChunkSize is how many items are processed between yields.
	ChunkSize int
	// MaxItems is the hard cap on items per submitted batch.
	MaxItems int
	// InterChunkDelay is slept between consecutive chunks. Zero still
	// yields the scheduler at each chunk boundary.
	InterChunkDelay time.Duration
	// ItemTimeout bounds a single item's processing when positive. An
	// expired item fails its own slot only.
	ItemTimeout time.Duration
	Logger      *slog.Logger
}

// Executor runs batches through a Processor. Items are processed strictly
// in submission order.
type Executor struct {
	processor Processor
	cfg       Config

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// New creates an Executor around processor, filling zero Config fields with
// defaults.
func New(processor Processor, cfg Config) *Executor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{processor: processor, cfg: cfg}
}

// OnProgress registers a progress listener
func (e *Executor) OnProgress(listener ProgressListener) {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

func (e *Executor) notifyProgress(event ProgressEvent) {
	e.progressMu.Lock()
	listeners := make([]ProgressListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Submit processes items in order and returns one result per item, aligned
// index-for-index with the input. The returned error is non-nil only for
// whole-batch failures: an oversized batch (rejected before any processing)
// or a canceled context (returned with the results produced so far).
func (e *Executor) Submit(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) > e.cfg.MaxItems {
		return nil, &BatchTooLargeError{Count: len(items), Limit: e.cfg.MaxItems}
	}

	results := make([]Result, len(items))
	for i := range results {
		results[i].Index = i
	}

	totalChunks := (len(items) + e.cfg.ChunkSize - 1) / e.cfg.ChunkSize
	e.notifyProgress(ProgressEvent{
		EventType:   EventBatchStart,
		TotalChunks: totalChunks,
		TotalItems:  len(items),
	})

	processed, failed := 0, 0
	for chunk := 0; chunk < totalChunks; chunk++ {
		if chunk > 0 {
			if err := e.pause(ctx); err != nil {
				return results, err
			}
		}

		start := chunk * e.cfg.ChunkSize
		end := min(start+e.cfg.ChunkSize, len(items))
		e.notifyProgress(ProgressEvent{
			EventType:   EventChunkStart,
			ChunkNum:    chunk + 1,
			TotalChunks: totalChunks,
			Processed:   processed,
			Failed:      failed,
			TotalItems:  len(items),
		})

		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			value, err := e.processItem(ctx, items[i])
			results[i] = Result{Index: i, Value: value, Err: err}
			processed++
			if err != nil {
				failed++
				e.cfg.Logger.Debug("batch item failed",
					"index", i,
					"kind", items[i].Kind,
					"error", err)
			}
		}

		e.notifyProgress(ProgressEvent{
			EventType:   EventChunkComplete,
			ChunkNum:    chunk + 1,
			TotalChunks: totalChunks,
			Processed:   processed,
			Failed:      failed,
			TotalItems:  len(items),
		})
	}

	e.notifyProgress(ProgressEvent{
		EventType:   EventBatchComplete,
		TotalChunks: totalChunks,
		Processed:   processed,
		Failed:      failed,
		TotalItems:  len(items),
	})
	return results, nil
}

// pause sits between consecutive chunks: chunk-local scratch is dead here,
// so the runtime gets its chance to reclaim it before the next chunk starts.
func (e *Executor) pause(ctx context.Context) error {
	if e.cfg.InterChunkDelay <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	timer := time.NewTimer(e.cfg.InterChunkDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) processItem(ctx context.Context, item Item) (any, error) {
	if e.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ItemTimeout)
		defer cancel()
	}
	return e.processor.Process(ctx, item)
}
