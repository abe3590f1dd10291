package internal

import "time"

// Trigger drives periodic flushes. Each value received from C starts one
// cycle that drains every bucket closed at that time.
type Trigger interface {
	C() <-chan time.Time
	Stop()
}

type tickerTrigger struct {
	ticker *time.Ticker
}

// NewTickerTrigger fires every interval using the wall clock.
func NewTickerTrigger(interval time.Duration) Trigger {
	return &tickerTrigger{ticker: time.NewTicker(interval)}
}

func (t *tickerTrigger) C() <-chan time.Time {
	return t.ticker.C
}

func (t *tickerTrigger) Stop() {
	t.ticker.Stop()
}

type chanTrigger struct {
	c <-chan time.Time
}

// NewChanTrigger fires whenever a time is sent on c. The caller owns c.
func NewChanTrigger(c <-chan time.Time) Trigger {
	return chanTrigger{c: c}
}

func (t chanTrigger) C() <-chan time.Time {
	return t.c
}

func (t chanTrigger) Stop() {}
