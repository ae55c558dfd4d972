package game

import "time"

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerGen struct{}

func (tickerGen) Create(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

func NewTickerGen() TickerCreator {
	return tickerGen{}
}
