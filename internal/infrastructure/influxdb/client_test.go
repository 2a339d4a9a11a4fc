package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/housing-backoffice/internal/infrastructure/config"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/influxdb"
)

// fakeInflux answers ping and write requests and hands written line
// protocol bodies to the test.
func fakeInflux(t *testing.T, pingStatus int) (*httptest.Server, <-chan string) {
	t.Helper()

	writes := make(chan string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/ping"):
			w.WriteHeader(pingStatus)
		case strings.HasSuffix(r.URL.Path, "/write"):
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			writes <- string(body)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, writes
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "backoffice-test-token",
		Org:           "backoffice",
		Bucket:        "auth",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(t.Context(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv, _ := fakeInflux(t, http.StatusNoContent)
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(t.Context(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_PingRejected(t *testing.T) {
	srv, _ := fakeInflux(t, http.StatusServiceUnavailable)

	if _, err := influxdb.Connect(t.Context(), testConfig(srv.URL)); err == nil {
		t.Fatal("Connect() should fail when ping is rejected")
	}
}

func TestWriteAuthAttempt(t *testing.T) {
	srv, writes := fakeInflux(t, http.StatusNoContent)

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 0 // default applies
	client, err := influxdb.Connect(t.Context(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ts := time.Date(2026, 10, 3, 7, 15, 0, 0, time.UTC)
	client.WriteAuthAttempt("login", "failure", "", ts)
	client.Flush()

	select {
	case body := <-writes:
		for _, want := range []string{
			influxdb.MeasurementAuthAttempts + ",",
			"action=login",
			"outcome=failure",
			"principal_kind=anonymous",
			"count=1i",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("line protocol %q missing %q", body, want)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no write reached the server")
	}
}

func TestClose(t *testing.T) {
	srv, _ := fakeInflux(t, http.StatusNoContent)

	client, err := influxdb.Connect(t.Context(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after Close are dropped quietly.
	client.WriteAuthAttempt("login", "success", "primary", time.Now())
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
