//go:build integration

package mqtt

import (
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_PublishAuthEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "backoffice-integration-pub"

	client, err := Connect(cfg, "integration")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	received := make(chan []byte, 1)
	subOpts := buildClientOptions(cfg)
	subOpts.SetClientID("backoffice-integration-sub")
	sub := pahomqtt.NewClient(subOpts)
	if token := sub.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", token.Error())
	}
	defer sub.Disconnect(100)

	topic := Topics{}.AuthEvent("integration", "login")
	token := sub.Subscribe(Topics{}.AllAuthEvents("integration"), 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		if m.Topic() == topic {
			received <- m.Payload()
		}
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe failed: %v", token.Error())
	}

	if err := client.Publish(topic, []byte(`{"action":"login"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"action":"login"}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}
