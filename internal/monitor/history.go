package monitor

import "sync"

// DefaultHistorySize is the default number of data points to retain per metric.
const DefaultHistorySize = 60

// History keeps recent CPU, RAM and swap percentages plus network counters
// per profile in ring buffers. It is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	size  int
	hosts map[string]*hostHistory
}

type hostHistory struct {
	cpu      *ringBuffer
	ram      *ringBuffer
	swap     *ringBuffer
	bytesIn  map[string]*ringBuffer
	bytesOut map[string]*ringBuffer
}

type ringBuffer struct {
	data  []float64
	head  int
	count int
}

// NewHistory creates a history that keeps size samples per metric.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:  size,
		hosts: make(map[string]*hostHistory),
	}
}

// Push records one sample for id.
func (h *History) Push(id string, m *HostMetrics) {
	if m == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	hist, ok := h.hosts[id]
	if !ok {
		hist = &hostHistory{
			cpu:      newRingBuffer(h.size),
			ram:      newRingBuffer(h.size),
			swap:     newRingBuffer(h.size),
			bytesIn:  make(map[string]*ringBuffer),
			bytesOut: make(map[string]*ringBuffer),
		}
		h.hosts[id] = hist
	}

	hist.cpu.push(m.CPU.Percent)
	hist.ram.push(m.RAM.UsagePercent)
	hist.swap.push(m.Swap.UsagePercent)
	for _, iface := range m.Network {
		if _, ok := hist.bytesIn[iface.Name]; !ok {
			hist.bytesIn[iface.Name] = newRingBuffer(h.size)
			hist.bytesOut[iface.Name] = newRingBuffer(h.size)
		}
		hist.bytesIn[iface.Name].push(float64(iface.BytesIn))
		hist.bytesOut[iface.Name].push(float64(iface.BytesOut))
	}
}

// CPU returns up to count CPU percentages for id, oldest first.
func (h *History) CPU(id string, count int) []float64 {
	return h.series(id, count, func(hh *hostHistory) *ringBuffer { return hh.cpu })
}

// RAM returns up to count RAM usage percentages for id, oldest first.
func (h *History) RAM(id string, count int) []float64 {
	return h.series(id, count, func(hh *hostHistory) *ringBuffer { return hh.ram })
}

// Swap returns up to count swap usage percentages for id, oldest first.
func (h *History) Swap(id string, count int) []float64 {
	return h.series(id, count, func(hh *hostHistory) *ringBuffer { return hh.swap })
}

func (h *History) series(id string, count int, pick func(*hostHistory) *ringBuffer) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hist, ok := h.hosts[id]
	if !ok {
		return nil
	}
	return pick(hist).last(count)
}

// NetworkRate reports the combined receive and transmit throughput of all
// non-loopback interfaces between the last two samples. Counter resets
// count as zero.
func (h *History) NetworkRate(id string, intervalSec float64) (inPerSec, outPerSec float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	hist, ok := h.hosts[id]
	if !ok || intervalSec <= 0 {
		return 0, 0
	}
	for name, in := range hist.bytesIn {
		if name == "lo" {
			continue
		}
		inPerSec += delta(in.last(2)) / intervalSec
		outPerSec += delta(hist.bytesOut[name].last(2)) / intervalSec
	}
	return inPerSec, outPerSec
}

func delta(pair []float64) float64 {
	if len(pair) < 2 || pair[1] < pair[0] {
		return 0
	}
	return pair[1] - pair[0]
}

// Count returns the number of samples stored for id.
func (h *History) Count(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hist, ok := h.hosts[id]
	if !ok {
		return 0
	}
	return hist.cpu.count
}

// Clear removes all history for id.
func (h *History) Clear(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.hosts, id)
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{data: make([]float64, size)}
}

func (r *ringBuffer) push(v float64) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// last returns up to n values, oldest first.
func (r *ringBuffer) last(n int) []float64 {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]float64, n)
	start := (r.head - n + len(r.data)) % len(r.data)
	for i := range out {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}
