package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MonitoringServer exposes /health and /metrics for a running relay.
type MonitoringServer struct {
	server    *http.Server
	listener  net.Listener
	port      string
	startTime time.Time
	logger    *LogsManager
	config    *ConfigManager
	registry  *prometheus.Registry

	requestCount int64
	errorCount   int64
}

type HealthStatus struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Port      string `json:"port"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

// NewMonitoringServer creates a server whose /metrics endpoint serves registry.
// Go runtime and process collectors are added to the registry.
func NewMonitoringServer(config *ConfigManager, logger *LogsManager, registry *prometheus.Registry) *MonitoringServer {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MonitoringServer{
		startTime: time.Now(),
		logger:    logger,
		config:    config,
		registry:  registry,
	}
}

// parsePortList parses a comma-separated list of ports
func parsePortList(portList string) []string {
	if portList == "" {
		return []string{}
	}
	ports := strings.Split(portList, ",")
	result := make([]string, 0, len(ports))
	for _, port := range ports {
		port = strings.TrimSpace(port)
		if port != "" {
			result = append(result, port)
		}
	}
	return result
}

func (ms *MonitoringServer) Start() error {
	metricsPort := ms.config.GetConfigWithDefault("metrics_port", "9464")
	fallbackPorts := parsePortList(ms.config.GetConfigWithDefault("metrics_fallback_ports", ""))
	ports := append([]string{metricsPort}, fallbackPorts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", ms.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(ms.registry, promhttp.HandlerOpts{}))

	var err error
	for i, port := range ports {
		ms.listener, err = net.Listen("tcp", "127.0.0.1:"+port)
		if err != nil {
			if i < len(ports)-1 {
				ms.logger.Warn(fmt.Sprintf("monitoring port %s unavailable, trying next port: %v", port, err), "monitoring")
				continue
			}
			return fmt.Errorf("failed to bind to any monitoring port: %v", err)
		}
		ms.port = port
		break
	}

	ms.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		if err := ms.server.Serve(ms.listener); err != nil && err != http.ErrServerClosed {
			ms.logger.Error(fmt.Sprintf("Monitoring server error: %v", err), "monitoring")
			atomic.AddInt64(&ms.errorCount, 1)
		}
	}()

	ms.logger.Info(fmt.Sprintf("Monitoring server listening on 127.0.0.1:%s (/health, /metrics)", ms.port), "monitoring")
	return nil
}

func (ms *MonitoringServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if ms.server != nil {
		if err := ms.server.Shutdown(ctx); err != nil {
			ms.logger.Warn(fmt.Sprintf("Error shutting down monitoring server: %v", err), "monitoring")
			return err
		}
	}
	return nil
}

func (ms *MonitoringServer) GetPort() string {
	return ms.port
}

func (ms *MonitoringServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&ms.requestCount, 1)
	w.Header().Set("Content-Type", "application/json")

	health := HealthStatus{
		Status:    "ok",
		Uptime:    time.Since(ms.startTime).String(),
		Port:      ms.port,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   AppName,
	}

	if err := json.NewEncoder(w).Encode(health); err != nil {
		atomic.AddInt64(&ms.errorCount, 1)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
