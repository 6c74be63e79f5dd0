package bridgeprotocol

import (
	"strings"
	"testing"
)

func TestDeriveEventEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
		wantErr  bool
	}{
		{"tcp://localhost:5555", "tcp://localhost:5556", false},
		{"tcp://192.0.2.1:18000", "tcp://192.0.2.1:18001", false},
		{"ipc:///tmp/bridge", "", true},
		{"inproc://bridge", "", true},
		{"tcp://localhost", "", true},
		{"localhost:5555", "", true},
	}

	for _, tt := range tests {
		got, err := DeriveEventEndpoint(tt.endpoint)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DeriveEventEndpoint(%q) = %q, want error", tt.endpoint, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("DeriveEventEndpoint(%q): %v", tt.endpoint, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DeriveEventEndpoint(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestCurveKeysValidate(t *testing.T) {
	key := strings.Repeat("k", 40)

	if err := (CurveKeys{}).validate(); err != nil {
		t.Errorf("empty keys rejected: %v", err)
	}
	full := CurveKeys{ServerKey: key, PublicKey: key, SecretKey: key}
	if err := full.validate(); err != nil {
		t.Errorf("full keys rejected: %v", err)
	}

	partials := []CurveKeys{
		{ServerKey: key},
		{ServerKey: key, PublicKey: key},
		{PublicKey: key, SecretKey: key},
	}
	for _, k := range partials {
		if err := k.validate(); err == nil {
			t.Errorf("partial keys %+v accepted", k)
		}
	}

	short := CurveKeys{ServerKey: key, PublicKey: key, SecretKey: "tooshort"}
	if err := short.validate(); err == nil {
		t.Error("short key accepted")
	}
}
