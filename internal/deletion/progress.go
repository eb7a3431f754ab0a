package deletion

import "sync/atomic"

// Progress holds live counters for the running batch. Fields are atomic so
// worker goroutines can update them while status surfaces read them.
type Progress struct {
	Requested atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64
	Bytes     atomic.Int64 // bytes reclaimed by successful deletes
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	Requested int64 `json:"requested"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Bytes     int64 `json:"bytes"`
}

// Snapshot reads every counter.
func (p *Progress) Snapshot() ProgressSnapshot {
	if p == nil {
		return ProgressSnapshot{}
	}
	return ProgressSnapshot{
		Requested: p.Requested.Load(),
		Succeeded: p.Succeeded.Load(),
		Failed:    p.Failed.Load(),
		Bytes:     p.Bytes.Load(),
	}
}

// Settled is the number of requests that finished either way.
func (s ProgressSnapshot) Settled() int64 { return s.Succeeded + s.Failed }
