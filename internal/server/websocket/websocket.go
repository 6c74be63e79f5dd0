package websocket

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

// AllowedOrigins holds the whitelist of origins that can connect via WebSocket
var AllowedOrigins = getAllowedOrigins()

// getAllowedOrigins loads allowed origins from environment variable
// Format: Comma-separated list, e.g., "http://localhost:3000,https://bridge.example.com"
func getAllowedOrigins() []string {
	originsEnv := os.Getenv("ALLOWED_ORIGINS")
	if originsEnv == "" {
		// Default to localhost for development
		log.Println("[SECURITY] WARNING: ALLOWED_ORIGINS not set, defaulting to localhost:3000")
		return []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		}
	}

	origins := strings.Split(originsEnv, ",")
	trimmed := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed = append(trimmed, strings.TrimSpace(origin))
	}

	log.Printf("[SECURITY] Allowed WebSocket origins: %v", trimmed)
	return trimmed
}

// checkOrigin validates that the WebSocket connection is from an allowed
// origin; connections without an Origin header are rejected outright since
// browsers always send one.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	if origin == "" {
		log.Printf("[SECURITY] Rejected WebSocket connection: missing Origin header from %s", r.RemoteAddr)
		return false
	}

	for _, allowed := range AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	log.Printf("[SECURITY] Rejected WebSocket connection from unauthorized origin: %s (remote: %s)", origin, r.RemoteAddr)
	return false
}

// Upgrader configures the WebSocket upgrader with origin checking
var Upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}
