//go:build integration
// +build integration

package agent

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mscrnt/nctmon/pkg/cert"
	"github.com/mscrnt/nctmon/pkg/chipsim"
)

// TestAgentIntegration tests the full agent server and client flow over mTLS
func TestAgentIntegration(t *testing.T) {
	bundle, err := cert.GenerateBundle(t.TempDir(), []string{"localhost", "127.0.0.1"}, "integration", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate certificates: %v", err)
	}

	serverConfig := ServerConfigFromBundle(bundle)
	serverConfig.Bind = "127.0.0.1"
	serverConfig.Port = findAvailablePort(t)

	server, err := NewServer(serverConfig, newChipSource(t, chipsim.NewReference()))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	clientConfig := ClientConfigFromBundle(bundle)
	clientConfig.Port = serverConfig.Port

	client, err := NewClient(clientConfig)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	for _, endpoint := range []string{"sysinfo", "sensors", "chip", "health"} {
		t.Run(endpoint, func(t *testing.T) {
			data, err := client.Get(endpoint)
			if err != nil {
				t.Fatalf("failed to connect: %v", err)
			}
			if len(data) == 0 {
				t.Error("received empty response")
			}
		})
	}

	t.Run("sensors", func(t *testing.T) {
		snap, err := client.FetchSensors()
		if err != nil {
			t.Fatal(err)
		}
		if len(snap.Fans) != 8 || snap.Fans[0].Value != 1000 {
			t.Errorf("unexpected fans: %+v", snap.Fans)
		}
	})

	t.Run("chip", func(t *testing.T) {
		info, err := client.FetchChip()
		if err != nil {
			t.Fatal(err)
		}
		if !info.Match || info.ChipID != "0xd592" {
			t.Errorf("unexpected chip info: %+v", info)
		}
	})

	t.Run("health_check", func(t *testing.T) {
		if err := client.CheckHealth(); err != nil {
			t.Errorf("health check failed: %v", err)
		}
	})

	t.Run("client_without_certificate", func(t *testing.T) {
		other, err := cert.GenerateBundle(t.TempDir(), []string{"localhost"}, "intruder", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		// trust the real server but present a certificate from another CA
		cfg := clientConfig
		cfg.CertFile = other.ClientCertFile
		cfg.KeyFile = other.ClientKeyFile
		intruder, err := NewClient(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := intruder.Get("health"); err == nil {
			t.Error("server accepted a client certificate from a foreign CA")
		}
	})

	if err := server.Shutdown(context.TODO()); err != nil {
		t.Errorf("failed to shutdown server: %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Errorf("server returned error: %v", err)
	}
}

// findAvailablePort finds an available port for testing
func findAvailablePort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}
