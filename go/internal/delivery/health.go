package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/taskqueue"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	Acked             uint64    `json:"acked"`
	Retried           uint64    `json:"retried"`
	Failed            uint64    `json:"failed"`
	LastDeliveryTime  time.Time `json:"last_delivery_time"`
	Sweeps            uint64    `json:"sweeps"`
	LastSweepTime     time.Time `json:"last_sweep_time"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ConsumingQueues   []string  `json:"consuming_queues"`
	Errors            []string  `json:"errors"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnectionState is satisfied by *nats.Conn.
type ConnectionState interface {
	IsConnected() bool
}

// SweepStats is satisfied by sweeper.Sweeper.
type SweepStats interface {
	Running() bool
	Stats() (sweeps uint64, lastRun time.Time, lastSubmitted int)
}

type HealthChecker struct {
	worker    *Worker
	stats     *taskqueue.Stats
	sweeper   SweepStats
	db        Pinger
	nats      ConnectionState
	threshold time.Duration // How long without a sweep before unhealthy
	now       func() time.Time
}

// NewHealthChecker builds a checker. sweeper, db and nats may be nil when the
// process does not use them.
func NewHealthChecker(worker *Worker, stats *taskqueue.Stats, sweeper SweepStats, db Pinger, nats ConnectionState, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		worker:    worker,
		stats:     stats,
		sweeper:   sweeper,
		db:        db,
		nats:      nats,
		threshold: threshold,
		now:       time.Now,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:         true,
		ConsumingQueues: h.worker.Consuming(),
		Errors:          []string{},
	}

	if h.stats != nil {
		counts, last := h.stats.Snapshot()
		status.Acked = counts[taskqueue.OutcomeAcked]
		status.Retried = counts[taskqueue.OutcomeRetried]
		status.Failed = counts[taskqueue.OutcomeFailed]
		status.LastDeliveryTime = last
	}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		} else {
			status.DatabaseConnected = true
		}
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if !h.worker.Running() {
		status.Healthy = false
		status.Errors = append(status.Errors, "worker not running")
	} else if len(status.ConsumingQueues) < len(h.worker.config.Queues) {
		status.Healthy = false
		status.Errors = append(status.Errors, "not all queue consumers are active")
	}

	if h.sweeper != nil {
		var lastSweep time.Time
		status.Sweeps, lastSweep, _ = h.sweeper.Stats()
		status.LastSweepTime = lastSweep
		if !h.sweeper.Running() {
			status.Healthy = false
			status.Errors = append(status.Errors, "sweeper not running")
		} else if !lastSweep.IsZero() && h.now().Sub(lastSweep) > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no sweep for %s", h.now().Sub(lastSweep)))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// MetricsHandler renders the health status in Prometheus text format.
type MetricsHandler struct {
	checker *HealthChecker
}

func NewMetricsHandler(checker *HealthChecker) *MetricsHandler {
	return &MetricsHandler{checker: checker}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(m.Export(ctx)))
}

func (m *MetricsHandler) Export(ctx context.Context) string {
	status := m.checker.Check(ctx)

	return fmt.Sprintf(`# HELP hooks_worker_healthy Whether the delivery worker is healthy
# TYPE hooks_worker_healthy gauge
hooks_worker_healthy %d

# HELP hooks_deliveries_total Settled delivery attempts by outcome
# TYPE hooks_deliveries_total counter
hooks_deliveries_total{outcome="acked"} %d
hooks_deliveries_total{outcome="retried"} %d
hooks_deliveries_total{outcome="failed"} %d

# HELP hooks_sweeps_total Pending event sweeps run
# TYPE hooks_sweeps_total counter
hooks_sweeps_total %d

# HELP hooks_database_connected Whether the database is reachable
# TYPE hooks_database_connected gauge
hooks_database_connected %d

# HELP hooks_nats_connected Whether NATS is connected
# TYPE hooks_nats_connected gauge
hooks_nats_connected %d

# HELP hooks_last_delivery_timestamp Unix timestamp of the last settled delivery
# TYPE hooks_last_delivery_timestamp gauge
hooks_last_delivery_timestamp %d
`,
		gauge(status.Healthy),
		status.Acked,
		status.Retried,
		status.Failed,
		status.Sweeps,
		gauge(status.DatabaseConnected),
		gauge(status.NATSConnected),
		unix(status.LastDeliveryTime),
	)
}

func gauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
