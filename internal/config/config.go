package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	NsqdHTTPAddr   string // e.g. nsqd:4151, used for depth stats
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	TokenTopic     string // token fulfillment topic
	OrderTopic     string // order fulfillment topic
	DLQTopic       string // dead letter topic
	Channel        string // consumer channel name
}

type KV struct {
	Backend   string // "redis" or "postgres"
	RedisAddr string // e.g. redis:6379
	RedisDB   int
	PGUser    string
	PGPass    string
	PGHost    string
	PGPort    string
	PGName    string
}

type Consumer struct {
	MaxAttempts    int           // deliveries before giving up
	BackoffBase    time.Duration // first retry delay; doubles per attempt
	PublishDLQ     bool          // publish dead letters to the DLQ topic
	HTTPPort       string        // health/metrics port
	RequestTimeout time.Duration // outbound HTTP call timeout
}

type Provider struct {
	BaseURL string // print provider API base URL
	APIKey  string // bearer token
}

type Email struct {
	BaseURL string // email API base URL
	APIKey  string
	From    string // sender address on confirmation emails
}

type Analytics struct {
	Endpoint string // capture endpoint URL
	APIKey   string
}

type Config struct {
	AppName        string
	NSQ            NSQ
	KV             KV
	Consumer       Consumer
	Provider       Provider
	Email          Email
	Analytics      Analytics
	ErrorReportURL string // error tracker sink; log-only when empty
	StagedOrderTTL time.Duration
	DedupMarkerTTL time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName: getenv("APP_NAME", "printdeck"),
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			NsqdHTTPAddr:   getenv("NSQD_HTTP_ADDR", "nsqd:4151"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			TokenTopic:     getenv("NSQ_TOKEN_TOPIC", "token-fulfillment"),
			OrderTopic:     getenv("NSQ_ORDER_TOPIC", "order-fulfillment"),
			DLQTopic:       getenv("NSQ_DLQ_TOPIC", "fulfillment_dlq"),
			Channel:        getenv("NSQ_CHANNEL", "fulfillment"),
		},
		KV: KV{
			Backend:   getenv("KV_BACKEND", "redis"),
			RedisAddr: getenv("REDIS_ADDR", "redis:6379"),
			RedisDB:   getenvInt("REDIS_DB", 0),
			PGUser:    getenv("DB_USER", "postgres"),
			PGPass:    getenv("DB_PASS", "postgres"),
			PGHost:    getenv("DB_HOST", "postgres"),
			PGPort:    getenv("DB_PORT", "5432"),
			PGName:    getenv("DB_NAME", "printdeck"),
		},
		Consumer: Consumer{
			MaxAttempts:    getenvInt("MAX_ATTEMPTS", 3),
			BackoffBase:    getenvDuration("BACKOFF_BASE", 5*time.Second),
			PublishDLQ:     getenvBool("PUBLISH_DLQ_TOPIC", false),
			HTTPPort:       ":" + getenv("CONSUMER_HTTP_PORT", "8082"),
			RequestTimeout: getenvDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Provider: Provider{
			BaseURL: getenv("PRINT_PROVIDER_URL", "https://api.printful.com/v2"),
			APIKey:  getenv("PRINT_PROVIDER_API_KEY", ""),
		},
		Email: Email{
			BaseURL: getenv("EMAIL_API_URL", "https://api.resend.com"),
			APIKey:  getenv("EMAIL_API_KEY", ""),
			From:    getenv("EMAIL_FROM", "Printdeck <orders@printdeck.store>"),
		},
		Analytics: Analytics{
			Endpoint: getenv("ANALYTICS_ENDPOINT", "https://eu.i.posthog.com/capture"),
			APIKey:   getenv("ANALYTICS_API_KEY", ""),
		},
		ErrorReportURL: getenv("ERROR_REPORT_URL", ""),
		StagedOrderTTL: getenvDuration("STAGED_ORDER_TTL", 24*time.Hour),
		DedupMarkerTTL: getenvDuration("DEDUP_MARKER_TTL", 7*24*time.Hour),
	}
}

func (c Config) PGDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.KV.PGUser, c.KV.PGPass, c.KV.PGHost, c.KV.PGPort, c.KV.PGName)
}
