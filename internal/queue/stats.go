package queue

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Wait durations are recorded in microseconds, up to one hour.
const (
	histMinValue = 1
	histMaxValue = int64(time.Hour / time.Microsecond)
	histSigFigs  = 3
)

// Stats is a snapshot of a channel's counters.
type Stats struct {
	Name            string      `json:"name"`
	Len             int         `json:"len"`
	Cap             int         `json:"cap"`
	Puts            uint64      `json:"puts"`
	Gets            uint64      `json:"gets"`
	FullRejections  uint64      `json:"full_rejections"`
	EmptyRejections uint64      `json:"empty_rejections"`
	Drained         uint64      `json:"drained"`
	PutWait         WaitSummary `json:"put_wait"`
	GetWait         WaitSummary `json:"get_wait"`
}

// WaitSummary holds percentiles of the time blocking calls spent waiting.
type WaitSummary struct {
	Count int64         `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

type recorder struct {
	mu              sync.Mutex
	puts            uint64
	gets            uint64
	fullRejections  uint64
	emptyRejections uint64
	drained         uint64
	putWait         *hdrhistogram.Histogram
	getWait         *hdrhistogram.Histogram
}

func newRecorder() *recorder {
	return &recorder{
		putWait: hdrhistogram.New(histMinValue, histMaxValue, histSigFigs),
		getWait: hdrhistogram.New(histMinValue, histMaxValue, histSigFigs),
	}
}

func (r *recorder) put(waited time.Duration, block bool) {
	r.mu.Lock()
	r.puts++
	if block {
		recordWait(r.putWait, waited)
	}
	r.mu.Unlock()
}

func (r *recorder) get(waited time.Duration, block bool) {
	r.mu.Lock()
	r.gets++
	if block {
		recordWait(r.getWait, waited)
	}
	r.mu.Unlock()
}

func (r *recorder) full() {
	r.mu.Lock()
	r.fullRejections++
	r.mu.Unlock()
}

func (r *recorder) empty() {
	r.mu.Lock()
	r.emptyRejections++
	r.mu.Unlock()
}

func (r *recorder) drain(n int) {
	r.mu.Lock()
	r.drained += uint64(n)
	r.mu.Unlock()
}

func (r *recorder) snapshot(name string, length, capacity int) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Name:            name,
		Len:             length,
		Cap:             capacity,
		Puts:            r.puts,
		Gets:            r.gets,
		FullRejections:  r.fullRejections,
		EmptyRejections: r.emptyRejections,
		Drained:         r.drained,
		PutWait:         summarize(r.putWait),
		GetWait:         summarize(r.getWait),
	}
}

func recordWait(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < histMinValue {
		us = histMinValue
	}
	if us > histMaxValue {
		us = histMaxValue
	}
	_ = h.RecordValue(us)
}

func summarize(h *hdrhistogram.Histogram) WaitSummary {
	if h.TotalCount() == 0 {
		return WaitSummary{}
	}
	return WaitSummary{
		Count: h.TotalCount(),
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
	}
}
