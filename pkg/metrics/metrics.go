// Package metrics provides Prometheus metrics for backup sessions.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

// Prometheus metrics
var (
	// BackupCount tracks the total number of database dumps performed
	BackupCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backupflow_backup_total",
		Help: "The total number of database dumps performed",
	}, []string{"strategy", "database_type", "status"})

	// BackupDuration measures time taken to dump a database
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backupflow_backup_duration_seconds",
		Help:    "Time taken to dump a database",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy", "database_type"})

	// BackupSize tracks size of the latest dump in bytes
	BackupSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backupflow_backup_size_bytes",
		Help: "Size of the latest backup file in bytes",
	}, []string{"strategy", "database"})

	// UploadCount tracks uploads to object storage
	UploadCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backupflow_upload_total",
		Help: "The total number of uploads to object storage",
	}, []string{"storage_type", "status"})

	// UploadDuration measures time taken to upload a backup
	UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backupflow_upload_duration_seconds",
		Help:    "Time taken to upload a backup to object storage",
		Buckets: prometheus.DefBuckets,
	}, []string{"storage_type"})

	// RetentionDeletes counts objects deleted by retention cleanup
	RetentionDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backupflow_retention_deletions_total",
		Help: "The total number of backups deleted by retention cleanup",
	}, []string{"storage_type"})

	// StrategyResults counts finished strategies by outcome
	StrategyResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backupflow_strategy_total",
		Help: "The total number of executed backup strategies",
	}, []string{"strategy", "status"})

	// SessionResults counts finished sessions by status
	SessionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backupflow_session_total",
		Help: "The total number of backup sessions",
	}, []string{"status"})

	// LastSuccessTimestamp records the finish time of the last successful strategy run
	LastSuccessTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backupflow_last_success_timestamp",
		Help: "Timestamp of the last successful strategy run",
	}, []string{"strategy"})
)

// Push sends the default registry to a Prometheus Pushgateway
func Push(url, job string) error {
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push()
}

// NewServer returns the HTTP server for the metrics and health check endpoints
func NewServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// StartMetricsServer serves metrics until ctx is cancelled
func StartMetricsServer(ctx context.Context, port string, log logrus.FieldLogger) error {
	server := NewServer(port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.WithField("port", port).Info("Starting metrics server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
