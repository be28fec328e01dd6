// Package metrics collects lock-free counters describing the proxy's
// live state: peer counts, worker occupancy, and queue pressure. It
// is consulted only for observability; nothing in the engine branches
// on a metrics value.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	Peers            int64             `json:"peers"`
	WorkersActive    int64             `json:"workers_active"`
	WorkersSpawned   int64             `json:"workers_spawned"`
	FramesSent       uint64            `json:"frames_sent"`
	FramesRecv       uint64            `json:"frames_recv"`
	QueueDrops       uint64            `json:"queue_drops"`
	AuthDenials      uint64            `json:"auth_denials"`
	AccessDenials    uint64            `json:"access_denials"`
	UnknownCommands  uint64            `json:"unknown_commands"`
	IdleExpirations  uint64            `json:"idle_expirations"`
	RecvByCategory   map[string]uint64 `json:"recv_by_category"`
}

// Metrics holds atomic counters mutated from the proxy and worker
// goroutines; RecvByCategory is the one map-shaped counter and is
// guarded by its own mutex rather than being lock-free.
type Metrics struct {
	peers           atomic.Int64
	workersActive   atomic.Int64
	workersSpawned  atomic.Int64
	framesSent      atomic.Uint64
	framesRecv      atomic.Uint64
	queueDrops      atomic.Uint64
	authDenials     atomic.Uint64
	accessDenials   atomic.Uint64
	unknownCommands atomic.Uint64
	idleExpirations atomic.Uint64

	catMu  sync.Mutex
	byCat  map[string]uint64
}

func New() *Metrics {
	return &Metrics{byCat: make(map[string]uint64)}
}

func (m *Metrics) SetPeers(n int)         { m.peers.Store(int64(n)) }
func (m *Metrics) IncWorkerActive()       { m.workersActive.Add(1) }
func (m *Metrics) DecWorkerActive()       { m.workersActive.Add(-1) }
func (m *Metrics) IncWorkerSpawned()      { m.workersSpawned.Add(1) }
func (m *Metrics) IncFramesSent()         { m.framesSent.Add(1) }
func (m *Metrics) IncFramesRecv()         { m.framesRecv.Add(1) }
func (m *Metrics) IncQueueDrop()          { m.queueDrops.Add(1) }
func (m *Metrics) IncAuthDenial()         { m.authDenials.Add(1) }
func (m *Metrics) IncAccessDenial()       { m.accessDenials.Add(1) }
func (m *Metrics) IncUnknownCommand()     { m.unknownCommands.Add(1) }
func (m *Metrics) IncIdleExpiration()     { m.idleExpirations.Add(1) }

func (m *Metrics) IncRecvByCategory(category string) {
	m.catMu.Lock()
	m.byCat[category]++
	m.catMu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	m.catMu.Lock()
	byCat := make(map[string]uint64, len(m.byCat))
	for k, v := range m.byCat {
		byCat[k] = v
	}
	m.catMu.Unlock()

	return Snapshot{
		GeneratedAt:     time.Now().UTC(),
		Peers:           m.peers.Load(),
		WorkersActive:   m.workersActive.Load(),
		WorkersSpawned:  m.workersSpawned.Load(),
		FramesSent:      m.framesSent.Load(),
		FramesRecv:      m.framesRecv.Load(),
		QueueDrops:      m.queueDrops.Load(),
		AuthDenials:     m.authDenials.Load(),
		AccessDenials:   m.accessDenials.Load(),
		UnknownCommands: m.unknownCommands.Load(),
		IdleExpirations: m.idleExpirations.Load(),
		RecvByCategory:  byCat,
	}
}
