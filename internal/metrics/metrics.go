package metrics

import (
	"sort"
	"sync"
	"time"
)

const responseWindow = 1000

type Metrics struct {
	mutex             sync.RWMutex
	connections       int64
	responses         int64
	bytesSent         int64
	sendFailures      int64
	clientDisconnects int64
	responseTimes     []time.Duration
	statusCodes       map[int]int64
	startTime         time.Time
}

type Snapshot struct {
	Connections       int64         `json:"connections"`
	Responses         int64         `json:"responses"`
	BytesSent         int64         `json:"bytes_sent"`
	SendFailures      int64         `json:"send_failures"`
	ClientDisconnects int64         `json:"client_disconnects"`
	DroppedEvents     int64         `json:"dropped_events"`
	StatusCodes       map[int]int64 `json:"status_codes"`
	AvgResponse       time.Duration `json:"avg_response"`
	P50Response       time.Duration `json:"p50_response"`
	P95Response       time.Duration `json:"p95_response"`
	P99Response       time.Duration `json:"p99_response"`
	Uptime            time.Duration `json:"uptime"`
	TransferMode      string        `json:"transfer_mode"`
}

func (m *Metrics) IncrementConnections() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.connections++
}

func (m *Metrics) RecordResponse(duration time.Duration, statusCode int, bytes int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responses++
	m.bytesSent += bytes
	m.statusCodes[statusCode]++

	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > responseWindow {
		m.responseTimes = m.responseTimes[1:]
	}
}

// RecordSendFailure counts a failed transfer. Client disconnects are also
// counted separately since they are expected under normal operation.
func (m *Metrics) RecordSendFailure(clientDisconnect bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.sendFailures++
	if clientDisconnect {
		m.clientDisconnects++
	}
}

func (m *Metrics) Snapshot(mode string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Connections:       m.connections,
		Responses:         m.responses,
		BytesSent:         m.bytesSent,
		SendFailures:      m.sendFailures,
		ClientDisconnects: m.clientDisconnects,
		StatusCodes:       make(map[int]int64, len(m.statusCodes)),
		Uptime:            time.Since(m.startTime),
		TransferMode:      mode,
	}

	for code, n := range m.statusCodes {
		snap.StatusCodes[code] = n
	}

	if len(m.responseTimes) > 0 {
		sorted := make([]time.Duration, len(m.responseTimes))
		copy(sorted, m.responseTimes)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		snap.AvgResponse = average(sorted)
		snap.P50Response = percentile(sorted, 0.50)
		snap.P95Response = percentile(sorted, 0.95)
		snap.P99Response = percentile(sorted, 0.99)
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		statusCodes: make(map[int]int64),
		startTime:   time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
