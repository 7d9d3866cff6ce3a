package driver

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-visionai/fault"
)

// Metrics is a point-in-time copy of the driver counters.
type Metrics struct {
	Exchanges         uint64        `json:"exchanges"`
	ExchangeFailures  uint64        `json:"exchange_failures"`
	Timeouts          uint64        `json:"timeouts"`
	Retries           uint64        `json:"retries"`
	BreakerRejections uint64        `json:"breaker_rejections"`
	Inferences        uint64        `json:"inferences"`
	Detections        uint64        `json:"detections"`
	DroppedElements   uint64        `json:"dropped_elements"`
	LastLatency       time.Duration `json:"last_latency"`
	LastSuccess       time.Time     `json:"last_success"`
}

// metrics holds lock-free counters updated from the exchange path.
type metrics struct {
	exchanges         atomic.Uint64
	exchangeFailures  atomic.Uint64
	timeouts          atomic.Uint64
	retries           atomic.Uint64
	breakerRejections atomic.Uint64
	inferences        atomic.Uint64
	detections        atomic.Uint64
	dropped           atomic.Uint64
	lastLatency       atomic.Int64
	lastSuccess       atomic.Int64
}

func (m *metrics) exchange(elapsed time.Duration, at time.Time, err error) {
	m.exchanges.Add(1)
	if err != nil {
		m.exchangeFailures.Add(1)
		if errors.Is(err, fault.ErrTimeout) {
			m.timeouts.Add(1)
		}
		return
	}
	m.lastLatency.Store(int64(elapsed))
	m.lastSuccess.Store(at.UnixNano())
}

func (m *metrics) inference(detections, dropped int) {
	m.inferences.Add(1)
	m.detections.Add(uint64(detections))
	m.dropped.Add(uint64(dropped))
}

func (m *metrics) snapshot() Metrics {
	s := Metrics{
		Exchanges:         m.exchanges.Load(),
		ExchangeFailures:  m.exchangeFailures.Load(),
		Timeouts:          m.timeouts.Load(),
		Retries:           m.retries.Load(),
		BreakerRejections: m.breakerRejections.Load(),
		Inferences:        m.inferences.Load(),
		Detections:        m.detections.Load(),
		DroppedElements:   m.dropped.Load(),
		LastLatency:       time.Duration(m.lastLatency.Load()),
	}
	if ns := m.lastSuccess.Load(); ns != 0 {
		s.LastSuccess = time.Unix(0, ns).UTC()
	}
	return s
}
