package download

import "sync"

// Progress is one transfer progress event. Transferred counts are
// monotonically non-decreasing per asset within one attempt; a retry starts a
// new attempt and resets the count.
type Progress struct {
	Asset       string
	Attempt     int // 1-based, incremented on each retry
	Transferred int64
	Total       int64
	Done        bool
}

// ProgressFunc receives progress events. It runs on the reporter goroutine,
// never on the transfer path.
type ProgressFunc func(Progress)

// progressEventBuffer bounds the reporter channel; intermediate events beyond
// this are dropped, the final event is always delivered.
const progressEventBuffer = 64

// reporter decouples the transfer from a possibly slow progress consumer: a
// bounded channel drops intermediate events when full, while the completion
// event is delivered unconditionally before close.
type reporter struct {
	ch   chan Progress
	done sync.WaitGroup
}

func newReporter(fn ProgressFunc) *reporter {
	r := &reporter{ch: make(chan Progress, progressEventBuffer)}
	r.done.Add(1)
	go func() {
		defer r.done.Done()
		for p := range r.ch {
			if fn != nil {
				fn(p)
			}
		}
	}()
	return r
}

// update publishes an intermediate event without ever blocking the transfer.
func (r *reporter) update(p Progress) {
	select {
	case r.ch <- p:
	default:
	}
}

// close delivers the final event and waits for the consumer to drain. The
// blocking send is safe: the consumer goroutine always drains the channel.
func (r *reporter) close(final Progress) {
	final.Done = true
	r.ch <- final
	close(r.ch)
	r.done.Wait()
}

// countingWriter reports transferred bytes through the reporter as it writes.
type countingWriter struct {
	rep         *reporter
	asset       string
	attempt     int
	total       int64
	transferred int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.transferred += int64(len(p))
	w.rep.update(Progress{Asset: w.asset, Attempt: w.attempt, Transferred: w.transferred, Total: w.total})
	return len(p), nil
}
