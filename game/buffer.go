package game

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const probeInterval = 100 * time.Millisecond

type BufferSettings struct {
	Interval        time.Duration
	OverloadedDelay time.Duration
	StableDelay     time.Duration
	Cooldown        time.Duration
	MinBatchSize    int
	MaxBatchSize    int
}

type Broadcaster interface {
	Broadcast(data []byte)
}

// BufferController recommends how many keystrokes clients should batch per
// message. It grows the batch under load and shrinks it back once the server
// has been calm for a cooldown period.
type BufferController struct {
	settings      BufferSettings
	sampler       *LatencySampler
	broadcaster   Broadcaster
	tickerCreator TickerCreator
	size          atomic.Int64
	lastHighLoad  time.Time
}

func NewBufferController(settings BufferSettings, sampler *LatencySampler, broadcaster Broadcaster, tickerCreator TickerCreator) *BufferController {
	c := &BufferController{
		settings:      settings,
		sampler:       sampler,
		broadcaster:   broadcaster,
		tickerCreator: tickerCreator,
	}
	c.size.Store(int64(settings.MinBatchSize))
	return c
}

func (c *BufferController) Size() int {
	return int(c.size.Load())
}

// Run blocks until ctx is done. Besides evaluating on every interval it
// probes its own scheduling delay, which feeds the same sampler the rooms
// report inbox delays to.
func (c *BufferController) Run(ctx context.Context) {
	evaluate := c.tickerCreator.Create(c.settings.Interval)
	probe := c.tickerCreator.Create(probeInterval)
	defer evaluate.Stop()
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-probe.C():
			c.sampler.Record(time.Since(tick))
		case now := <-evaluate.C():
			c.evaluate(now)
		}
	}
}

func (c *BufferController) evaluate(now time.Time) bool {
	p95 := c.sampler.P95AndReset()
	current := c.Size()
	next := current

	switch {
	case p95 > c.settings.OverloadedDelay:
		c.lastHighLoad = now
		next = min(current+2, c.settings.MaxBatchSize)
	case p95 < c.settings.StableDelay && now.Sub(c.lastHighLoad) >= c.settings.Cooldown:
		next = max(current-1, c.settings.MinBatchSize)
	}

	if next == current {
		return false
	}
	c.size.Store(int64(next))
	log.Info().Dur("p95", p95).Int("from", current).Int("to", next).Msg("recommended batch size changed")
	c.broadcaster.Broadcast(MakePacketBufferSize(next))
	return true
}
