package alertclient

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	BaseURL string
	APIKey  string

	Timeout time.Duration

	// Alerts per minute before emissions are dropped. Guards the sink
	// against dead-letter storms.
	RateLimit int
	RateBurst int

	CircuitBreakerEnabled bool
	CBFailureThreshold    int
	CBRecoveryTime        time.Duration
	CBMinRequests         int
	CBSamplingDuration    time.Duration
	CBHalfOpenMaxSuccess  int
}

func LoadFromEnv() Config {
	return Config{
		BaseURL: os.Getenv("ALERT_SINK_URL"),
		APIKey:  os.Getenv("ALERT_SINK_API_KEY"),

		Timeout: time.Second * time.Duration(getInt("ALERT_SINK_TIMEOUT", 10)),

		RateLimit: getInt("ALERT_SINK_RATE_LIMIT", 60),
		RateBurst: getInt("ALERT_SINK_RATE_BURST", 10),

		CircuitBreakerEnabled: getBool("ALERT_SINK_ENABLE_CIRCUIT_BREAKER", true),
		CBFailureThreshold:    getInt("ALERT_SINK_CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
		CBRecoveryTime:        time.Second * time.Duration(getInt("ALERT_SINK_CIRCUIT_BREAKER_RECOVERY_TIME", 60)),
		CBMinRequests:         getInt("ALERT_SINK_CIRCUIT_BREAKER_MIN_REQUESTS", 10),
		CBSamplingDuration:    time.Second * time.Duration(getInt("ALERT_SINK_CIRCUIT_BREAKER_SAMPLING_DURATION", 60)),
		CBHalfOpenMaxSuccess:  getInt("ALERT_SINK_CIRCUIT_BREAKER_HALF_OPEN_MAX_SUCCESS", 3),
	}
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		return v == "true"
	}
	return def
}
