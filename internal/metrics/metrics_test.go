package metrics

import "testing"

func TestMetricsCounters(t *testing.T) {
	m := New()
	m.SetPeers(3)
	m.IncWorkerActive()
	m.IncWorkerActive()
	m.DecWorkerActive()
	m.IncWorkerSpawned()
	m.IncFramesSent()
	m.IncFramesSent()
	m.IncFramesRecv()
	m.IncQueueDrop()
	m.IncAuthDenial()
	m.IncAccessDenial()
	m.IncUnknownCommand()
	m.IncIdleExpiration()
	m.IncRecvByCategory("chat")
	m.IncRecvByCategory("chat")
	m.IncRecvByCategory("admin")

	snap := m.Snapshot()
	if snap.Peers != 3 {
		t.Fatalf("peers = %d, want 3", snap.Peers)
	}
	if snap.WorkersActive != 1 {
		t.Fatalf("workers active = %d, want 1", snap.WorkersActive)
	}
	if snap.WorkersSpawned != 1 {
		t.Fatalf("workers spawned = %d, want 1", snap.WorkersSpawned)
	}
	if snap.FramesSent != 2 || snap.FramesRecv != 1 {
		t.Fatalf("frame counts = %d/%d, want 2/1", snap.FramesSent, snap.FramesRecv)
	}
	if snap.QueueDrops != 1 || snap.AuthDenials != 1 || snap.AccessDenials != 1 || snap.UnknownCommands != 1 || snap.IdleExpirations != 1 {
		t.Fatalf("unexpected single counters: %+v", snap)
	}
	if snap.RecvByCategory["chat"] != 2 || snap.RecvByCategory["admin"] != 1 {
		t.Fatalf("recv by category = %+v", snap.RecvByCategory)
	}
}

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := New()
	m.IncRecvByCategory("x")
	snap := m.Snapshot()
	snap.RecvByCategory["x"] = 999
	if m.Snapshot().RecvByCategory["x"] != 1 {
		t.Fatalf("mutating a snapshot must not affect the live metrics")
	}
}
