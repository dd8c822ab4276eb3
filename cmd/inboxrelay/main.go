package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/campusworks/inboxrelay/internal/httpapi"
	"github.com/campusworks/inboxrelay/internal/hub"
)

func main() {
	addr := os.Getenv("INBOXRELAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	stateBackend, err := buildStateBackendFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}

	store := hub.NewStoreWithOptions(hub.StoreOptions{
		StateBackend:     stateBackend,
		StateFile:        os.Getenv("INBOXRELAY_STATE_FILE"),
		Retention:        intEnv("INBOXRELAY_RETENTION", 0),
		SubscriberBuffer: intEnv("INBOXRELAY_SUBSCRIBER_BUFFER", 0),
	})
	defer store.Close()

	server := httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
		JWTSecret:          os.Getenv("INBOXRELAY_JWT_SECRET"),
		InternalHMACSecret: os.Getenv("INBOXRELAY_INTERNAL_HMAC_SECRET"),
		InternalMaxSkew:    durationEnv("INBOXRELAY_INTERNAL_MAX_SKEW", 5*time.Minute),
		RateLimitMax:       intEnv("INBOXRELAY_RATE_LIMIT_MAX", 0),
		RateLimitWindow:    durationEnv("INBOXRELAY_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:       int64Env("INBOXRELAY_MAX_BODY_BYTES", 0),
		HeartbeatInterval:  durationEnv("INBOXRELAY_HEARTBEAT_INTERVAL", 10*time.Second),
		StreamWriteTimeout: durationEnv("INBOXRELAY_STREAM_WRITE_TIMEOUT", 5*time.Second),
	})

	log.Printf("inboxrelay listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func buildStateBackendFromEnv() (hub.StateBackend, error) {
	stateBackendDSN := strings.TrimSpace(os.Getenv("INBOXRELAY_STATE_BACKEND_DSN"))
	stateFile := strings.TrimSpace(os.Getenv("INBOXRELAY_STATE_FILE"))
	switch {
	case stateBackendDSN != "":
		return hub.BuildStateBackendFromDSN(stateBackendDSN)
	case stateFile != "":
		return hub.BuildStateBackendFromDSN(stateFile)
	default:
		return nil, nil
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
