package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeCounters struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCounters) DeleteExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return 3, f.err
}

type fakeOffers struct {
	calls atomic.Int32
}

func (f *fakeOffers) ExpireOffers(context.Context) (int64, error) {
	f.calls.Add(1)
	return 1, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStart_RunsTickersUntilCancelled(t *testing.T) {
	counters := &fakeCounters{}
	offers := &fakeOffers{}
	cfg := Config{
		CounterGCInterval:   5 * time.Millisecond,
		OfferExpiryInterval: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Start(ctx, counters, offers, cfg, discard())
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, counters.calls.Load(), int32(1))
	assert.GreaterOrEqual(t, offers.calls.Load(), int32(1))
}

func TestStart_ZeroIntervalDisablesTask(t *testing.T) {
	counters := &fakeCounters{err: errors.New("unreachable")}
	offers := &fakeOffers{}
	cfg := Config{OfferExpiryInterval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Start(ctx, counters, offers, cfg, discard())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Zero(t, counters.calls.Load())
	assert.GreaterOrEqual(t, offers.calls.Load(), int32(1))
}
