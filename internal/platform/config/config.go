// Package config centralizes runtime configuration. Escalation thresholds and
// window durations are product policy, not protocol, so they live here as
// named values with environment overrides instead of literals in services.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration tree.
type Config struct {
	MetricsAddr string

	FraudPolicy FraudPolicy
	Liveness    Liveness
	Biometric   Biometric
	Verify      Verify
	Spoof       Spoof

	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
}

// FraudPolicy drives the escalation ladder in the fraud ledger.
type FraudPolicy struct {
	// Window is the trailing period over which attempts are counted.
	Window time.Duration
	// BlockThreshold attempts inside Window (or one critical attempt) block.
	BlockThreshold int
	// EscalateThreshold attempts (or one high-severity attempt) escalate.
	EscalateThreshold int
	// WarnThreshold attempts warn.
	WarnThreshold int
	// BlockDuration is how long a triggered block lasts.
	BlockDuration time.Duration
}

// Liveness configures challenge sessions.
type Liveness struct {
	// SessionTTL is the hard wall-clock expiry for an unfinalized session.
	SessionTTL time.Duration
	// ReaperInterval is how often the sweep loop looks for expired sessions.
	ReaperInterval time.Duration
	// MinChallenges and MaxChallenges bound the random challenge count.
	MinChallenges int
	MaxChallenges int
	// PassConfidence and FailConfidence split terminal outcomes.
	PassConfidence float64
	FailConfidence float64
}

// Biometric configures the verification adapter.
type Biometric struct {
	// SimilarityThreshold is the primary-strategy match bar, in [0,1].
	SimilarityThreshold float64
	// FallbackMaxDistance is the descriptor-distance bar for the fallback
	// comparator.
	FallbackMaxDistance float64
	// BackendTimeout bounds a single external recognition call.
	BackendTimeout time.Duration
	// BackendURL is the external recognition service base URL.
	BackendURL string
	// DescriptorKey is the base64-encoded 32-byte key sealing enrollment
	// descriptors at rest. Required when the Postgres enrollment store is on.
	DescriptorKey string
}

// Verify configures the orchestrator's short-term anomaly tracking.
type Verify struct {
	// FailureThreshold consecutive failures raise an identity-mismatch
	// fraud attempt.
	FailureThreshold int
	// CounterTTL bounds the lifetime of idle attempt counters.
	CounterTTL time.Duration
}

// Spoof configures the kinematic detector's physical plausibility limits.
type Spoof struct {
	// TeleportSpeedKmh is the hard impossibility bar.
	TeleportSpeedKmh float64
	// BurstSpeedKmh flags sustained impossible ground speed over short gaps.
	BurstSpeedKmh float64
	// BurstWindow is the gap under which BurstSpeedKmh applies.
	BurstWindow time.Duration
	// MaxAccuracyMeters above this is flagged as low-accuracy (informational).
	MaxAccuracyMeters float64
}

// Postgres carries connection settings for durable stores.
type Postgres struct {
	URL string
}

// Redis carries connection settings for the location history store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka carries settings for the audit event stream.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Default returns the policy baseline. FromEnv layers overrides on top.
func Default() Config {
	return Config{
		MetricsAddr: ":9090",
		FraudPolicy: FraudPolicy{
			Window:            24 * time.Hour,
			BlockThreshold:    5,
			EscalateThreshold: 3,
			WarnThreshold:     2,
			BlockDuration:     24 * time.Hour,
		},
		Liveness: Liveness{
			SessionTTL:     120 * time.Second,
			ReaperInterval: 5 * time.Second,
			MinChallenges:  2,
			MaxChallenges:  4,
			PassConfidence: 0.8,
			FailConfidence: 0.5,
		},
		Biometric: Biometric{
			SimilarityThreshold: 0.85,
			FallbackMaxDistance: 0.5,
			BackendTimeout:      30 * time.Second,
		},
		Verify: Verify{
			FailureThreshold: 3,
			CounterTTL:       15 * time.Minute,
		},
		Spoof: Spoof{
			TeleportSpeedKmh:  500,
			BurstSpeedKmh:     150,
			BurstWindow:       60 * time.Second,
			MaxAccuracyMeters: 100,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Topic: "vigil.audit",
		},
	}
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Default()

	if v := os.Getenv("VIGIL_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("VIGIL_POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("VIGIL_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("VIGIL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("VIGIL_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("VIGIL_RECOGNITION_URL"); v != "" {
		cfg.Biometric.BackendURL = v
	}
	if v := os.Getenv("VIGIL_DESCRIPTOR_KEY"); v != "" {
		cfg.Biometric.DescriptorKey = v
	}

	cfg.FraudPolicy.BlockThreshold = envInt("VIGIL_FRAUD_BLOCK_THRESHOLD", cfg.FraudPolicy.BlockThreshold)
	cfg.FraudPolicy.EscalateThreshold = envInt("VIGIL_FRAUD_ESCALATE_THRESHOLD", cfg.FraudPolicy.EscalateThreshold)
	cfg.FraudPolicy.WarnThreshold = envInt("VIGIL_FRAUD_WARN_THRESHOLD", cfg.FraudPolicy.WarnThreshold)
	cfg.FraudPolicy.Window = envDuration("VIGIL_FRAUD_WINDOW", cfg.FraudPolicy.Window)
	cfg.FraudPolicy.BlockDuration = envDuration("VIGIL_FRAUD_BLOCK_DURATION", cfg.FraudPolicy.BlockDuration)

	cfg.Liveness.SessionTTL = envDuration("VIGIL_LIVENESS_SESSION_TTL", cfg.Liveness.SessionTTL)
	cfg.Liveness.ReaperInterval = envDuration("VIGIL_LIVENESS_REAPER_INTERVAL", cfg.Liveness.ReaperInterval)

	cfg.Biometric.SimilarityThreshold = envFloat("VIGIL_BIOMETRIC_THRESHOLD", cfg.Biometric.SimilarityThreshold)
	cfg.Biometric.BackendTimeout = envDuration("VIGIL_BIOMETRIC_BACKEND_TIMEOUT", cfg.Biometric.BackendTimeout)

	cfg.Verify.FailureThreshold = envInt("VIGIL_VERIFY_FAILURE_THRESHOLD", cfg.Verify.FailureThreshold)
	cfg.Verify.CounterTTL = envDuration("VIGIL_VERIFY_COUNTER_TTL", cfg.Verify.CounterTTL)

	return cfg
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
