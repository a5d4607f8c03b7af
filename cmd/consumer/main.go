package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/printdeck/fulfillment/internal/analytics"
	"github.com/printdeck/fulfillment/internal/config"
	"github.com/printdeck/fulfillment/internal/consumer"
	"github.com/printdeck/fulfillment/internal/health"
	"github.com/printdeck/fulfillment/internal/kv"
	"github.com/printdeck/fulfillment/internal/ledger"
	"github.com/printdeck/fulfillment/internal/logging"
	"github.com/printdeck/fulfillment/internal/metrics"
	"github.com/printdeck/fulfillment/internal/notify"
	"github.com/printdeck/fulfillment/internal/printorder"
	"github.com/printdeck/fulfillment/internal/queue"
	"github.com/printdeck/fulfillment/internal/report"
	"github.com/printdeck/fulfillment/internal/tracing"
)

const serviceName = "fulfillment-consumer"

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New(serviceName)

	shutdown, err := tracing.InitTracing(ctx, serviceName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	store := openStore(ctx, cfg, logger)
	defer store.Close()

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// HTTP health/metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(store))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Consumer.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("consumer HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("consumer HTTP server failed")
		}
	}()

	reporter := report.New(cfg.ErrorReportURL, serviceName, cfg.Consumer.RequestTimeout)
	events := analytics.NewClient(cfg.Analytics.Endpoint, cfg.Analytics.APIKey, cfg.Consumer.RequestTimeout)
	mailer := notify.NewResend(cfg.Email.BaseURL, cfg.Email.APIKey, cfg.Email.From, cfg.Consumer.RequestTimeout)

	// Without a credential there is no point calling the provider; a nil
	// client makes the order handler acknowledge with a fatal config error
	// instead of burning retries on 401s.
	var provider *printorder.Client
	if cfg.Provider.APIKey != "" {
		provider = printorder.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Consumer.RequestTimeout)
	} else {
		logger.Plain().Warn("print provider API key not set, order fulfillment will not submit orders")
	}

	// DLQ producer
	var dlq consumer.DeadLetterSink
	if cfg.Consumer.PublishDLQ {
		producer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer for DLQ creation failed")
		}
		defer producer.Stop()
		dlq = consumer.NewNSQDeadLetterSink(producer, cfg.NSQ.DLQTopic)
	}

	dispatcher := consumer.NewDispatcher(reporter, dlq, cfg.Consumer.MaxAttempts, cfg.Consumer.BackoffBase)
	dispatcher.Register(queue.TokenTopicPrefix, ledger.NewHandler(store, mailer, events, reporter, cfg.DedupMarkerTTL))
	dispatcher.Register(queue.OrderTopicPrefix, printorder.NewHandler(store, provider, mailer, events, reporter))

	conf := nsq.NewConfig()
	conf.MaxInFlight = 100
	conf.MaxAttempts = 0 // attempt limits are enforced by the dispatcher

	consumers := make([]*nsq.Consumer, 0, 2)
	for _, topic := range []string{cfg.NSQ.TokenTopic, cfg.NSQ.OrderTopic} {
		c, err := nsq.NewConsumer(topic, cfg.NSQ.Channel, conf)
		if err != nil {
			logger.Plain().WithError(err).WithField("topic", topic).Fatal("nsq consumer creation failed")
		}
		c.AddHandler(consumer.NewNSQHandler(dispatcher, topic))

		// Connecting directly to nsqd forces channel creation, instead of the
		// channel being lazily created on first publish
		if err := c.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
			logger.Plain().WithError(err).WithField("topic", topic).Fatal("connect to nsqd failed")
		}
		if err := c.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
			logger.Plain().WithError(err).WithField("topic", topic).Fatal("connect to lookupd failed")
		}
		consumers = append(consumers, c)
	}

	stopMonitor := consumer.StartBacklogMonitor(cfg.NSQ.NsqdHTTPAddr,
		[]string{cfg.NSQ.TokenTopic, cfg.NSQ.OrderTopic}, 15*time.Second)
	defer stopMonitor()

	logger.Plain().Info("fulfillment consumer started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down fulfillment consumer")
	for _, c := range consumers {
		c.Stop()
	}
	for _, c := range consumers {
		<-c.StopChan
	}
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("fulfillment consumer stopped")
}

// openStore connects the configured KV backend. Both backends implement the
// same Store contract, so the handlers never know which one is live.
func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) kv.Store {
	switch cfg.KV.Backend {
	case "postgres":
		store, err := kv.NewPostgres(ctx, cfg.PGDSN())
		if err != nil {
			logger.Plain().WithError(err).Fatal("postgres connect failed")
		}
		logger.Plain().WithField("backend", "postgres").Info("kv store connected")
		return store
	case "redis":
		store, err := kv.NewRedis(ctx, cfg.KV.RedisAddr, cfg.KV.RedisDB)
		if err != nil {
			logger.Plain().WithError(err).Fatal("redis connect failed")
		}
		logger.Plain().WithField("backend", "redis").Info("kv store connected")
		return store
	default:
		logger.Plain().WithField("backend", cfg.KV.Backend).Fatal("unknown KV backend")
		return nil
	}
}
