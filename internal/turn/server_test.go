package turn

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestICEServer(t *testing.T) {
	s := ICEServer(ConfigOptions{
		PublicIP: "203.0.113.7",
		Port:     3478,
		Username: "user",
		Password: "password",
	})
	if len(s.URLs) != 1 || s.URLs[0] != "turn:203.0.113.7:3478?transport=udp" {
		t.Fatalf("urls are incorrect, got %v", s.URLs)
	}
	if s.Username != "user" || s.Credential != "password" {
		t.Fatalf("credentials are incorrect, got %s/%s", s.Username, s.Credential)
	}

	s = ICEServer(ConfigOptions{PublicIP: "2001:db8::1", Port: 3478})
	if s.URLs[0] != "turn:[2001:db8::1]:3478?transport=udp" {
		t.Fatalf("ipv6 url is incorrect, got %s", s.URLs[0])
	}
}

func TestServe(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("invalid public ip", func(t *testing.T) {
		if _, err := Serve(&logger, &ConfigOptions{PublicIP: "nope", RelayMinPort: 1, RelayMaxPort: 2}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("empty port range", func(t *testing.T) {
		if _, err := Serve(&logger, &ConfigOptions{PublicIP: "127.0.0.1", RelayMinPort: 2, RelayMaxPort: 1}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("start and close", func(t *testing.T) {
		r, err := Serve(&logger, &ConfigOptions{
			PublicIP:     "127.0.0.1",
			Port:         0,
			Username:     "user",
			Password:     "password",
			Realm:        "example.com",
			RelayMinPort: 50000,
			RelayMaxPort: 50010,
		})
		if err != nil {
			t.Fatal(err)
		}
		if got := r.ICEServer().Username; got != "user" {
			t.Fatalf("got %s want user", got)
		}
		if err := r.Close(); err != nil {
			t.Fatal(err)
		}
	})
}
