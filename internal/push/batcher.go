package push

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Multicaster issues one gateway multicast call for up to the gateway's
// batch ceiling of tokens. A non-nil error means the whole batch failed
// before per-token outcomes existed.
type Multicaster interface {
	SendBatch(ctx context.Context, tokens []string, payload Payload) ([]TokenResult, error)
}

// Batcher partitions device tokens into fixed-size batches and dispatches
// them through the gateway with bounded concurrency. Batches share no state;
// a failure in one never aborts the others.
type Batcher struct {
	sender      Multicaster
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewBatcher creates a Batcher. batchSize is the gateway's multicast ceiling.
func NewBatcher(sender Multicaster, batchSize, concurrency int, logger *slog.Logger) *Batcher {
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{sender: sender, batchSize: batchSize, concurrency: concurrency, logger: logger}
}

// Partition splits tokens into batches of at most batchSize. Exported so
// dry-run responses can report the would-be batch plan.
func (b *Batcher) Partition(tokens []string) [][]string {
	if len(tokens) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(tokens)+b.batchSize-1)/b.batchSize)
	for start := 0; start < len(tokens); start += b.batchSize {
		end := start + b.batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches
}

// SendAll dispatches every token in ceil(N/batchSize) gateway calls, at most
// b.concurrency in flight at once. Once ctx is cancelled or deadline passes,
// no new batches are issued — in-flight batches run to completion, since a
// partially acknowledged batch leaves ambiguous per-token state. Skipped
// tokens are counted, not failed. No batch is ever retried here.
func (b *Batcher) SendAll(ctx context.Context, tokens []string, payload Payload, deadline time.Time) Result {
	start := time.Now()
	batches := b.Partition(tokens)
	if len(batches) == 0 {
		return Result{Elapsed: time.Since(start)}
	}

	workers := b.concurrency
	if workers > len(batches) {
		workers = len(batches)
	}

	work := make(chan []string, len(batches))
	for _, batch := range batches {
		work <- batch
	}
	close(work)

	var mu sync.Mutex
	var wg sync.WaitGroup
	var result Result

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range work {
				if ctx.Err() != nil || (!deadline.IsZero() && time.Now().After(deadline)) {
					mu.Lock()
					result.Skipped += len(batch)
					mu.Unlock()
					continue
				}

				outcomes, err := b.sender.SendBatch(ctx, batch, payload)
				if err != nil {
					// Whole-batch transport failure: every token failed.
					b.logger.Warn("batch send failed", "tokens", len(batch), "error", err)
					outcomes = make([]TokenResult, len(batch))
					for j, token := range batch {
						outcomes[j] = TokenResult{Token: token, Code: ErrServerError, Err: err.Error()}
					}
				}

				mu.Lock()
				result.Batches++
				for _, o := range outcomes {
					if o.OK {
						result.SuccessCount++
					} else {
						result.FailureCount++
						result.Failures = append(result.Failures, o)
					}
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	result.Elapsed = time.Since(start)

	if result.Skipped > 0 {
		b.logger.Warn("delivery stopped before all batches were issued",
			"skipped_tokens", result.Skipped,
			"batches_issued", result.Batches,
			"elapsed", result.Elapsed)
	}
	return result
}
