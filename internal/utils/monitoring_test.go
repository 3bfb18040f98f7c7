package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitoringServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_events_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	config := NewStaticConfig(map[string]string{"metrics_port": "0"})
	ms := NewMonitoringServer(config, NewLogsManagerWithWriter(config, io.Discard), registry)
	require.NoError(t, ms.Start())
	t.Cleanup(func() { ms.Stop() })

	base := "http://" + ms.listener.Addr().String()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health HealthStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, AppName, health.Version)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_events_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, HashBytes([]byte("ab")), HashBytes([]byte("a"), []byte("b")))
	assert.Len(t, HashBytes(), 64)
	assert.NotEqual(t, HashBytes([]byte("a")), HashBytes([]byte("b")))
}
