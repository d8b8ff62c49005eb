package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"forum/pkg/api"
	"forum/pkg/auth"
	"forum/pkg/cache"
	"forum/pkg/censor"
	"forum/pkg/config"
	"forum/pkg/storage"
	"forum/pkg/storage/memdb"
	"forum/pkg/storage/mongo"
)

func main() {
	var (
		configPath string
		httpAddr   string
		logLevel   string
		dev        bool
	)

	flag.StringVar(&configPath, "config", "cmd/server/config.toml", "Path to TOML config file")
	flag.StringVar(&httpAddr, "http", "", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.BoolVar(&dev, "dev", false, "Use in-memory storage instead of MongoDB.")
	flag.Parse()

	config.LoadDotEnv(".env")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[server] %v", err)
	}

	// Override config with flags if set
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[server] invalid configuration: %v", err)
	}
	if !strings.Contains(cfg.HTTPAddr, ":") {
		log.Warn("[server] use ':' before port number, e.g. ':8080'")
	}
	config.SetLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := openStorage(ctx, dev)
	cancel()
	if err != nil {
		log.Fatalf("[server] failed to initialize storage: %v", err)
	}

	tokens, err := auth.NewIssuer(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret)
	if err != nil {
		log.Fatalf("[server] failed to create token issuer: %v", err)
	}

	trees, err := cache.New(cfg.Cache.Size, cfg.Cache.TreeTTL)
	if err != nil {
		log.Fatalf("[server] failed to create comment tree cache: %v", err)
	}

	checker, err := contentChecker(cfg.Censor)
	if err != nil {
		log.Fatalf("[server] failed to set up content check: %v", err)
	}

	var kafkaWriter *kafka.Writer
	if cfg.Kafka.Addr != "" && cfg.Kafka.Topic != "" {
		kafkaWriter = &kafka.Writer{
			Addr:      kafka.TCP(cfg.Kafka.Addr),
			Topic:     cfg.Kafka.Topic,
			BatchSize: cfg.Kafka.Batch,
		}
		if err := createTopic(kafkaWriter.Addr.String(), kafkaWriter.Topic); err != nil {
			log.Warnf("[server] failed to create Kafka topic: %v", err)
		}
	} else {
		log.Warnf("[server] kafka was not configured, logs will not be sent to Kafka")
	}

	api := api.New(db, tokens, api.Options{
		ServiceName:   cfg.ServiceName,
		MaxDepth:      cfg.Comments.MaxDepth,
		SecureCookies: cfg.Auth.SecureCookies,
		CORSOrigin:    cfg.CORSOrigin,
		Trees:         trees,
		Checker:       checker,
		KafkaWriter:   kafkaWriter,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Infof("[server] starting on %v", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] failed to start: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[server] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[server] HTTP server shut down gracefully")
	}

	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			log.Errorf("[server] failed to close Kafka writer: %v", err)
		}
	}

	db.Close(shutdownCtx)
	log.Info("[server] disconnected from DB")
}

func openStorage(ctx context.Context, dev bool) (storage.Storage, error) {
	if dev {
		log.Warn("[server] running with in-memory storage, data will be lost on exit")
		return memdb.New(), nil
	}

	conf, err := mongo.NewConfig()
	if err != nil {
		return nil, err
	}
	return mongo.New(ctx, conf)
}

// contentChecker prefers the remote censor service and falls back to a local word list.
func contentChecker(c config.Censor) (censor.Checker, error) {
	if c.URL != "" {
		log.Infof("[server] content check delegated to %s", c.URL)
		return censor.NewClient(c.URL, c.Timeout), nil
	}
	if c.WordsPath == "" {
		log.Warn("[server] content check disabled")
		return nil, nil
	}

	local := censor.New()
	if err := local.LoadFromJSON(c.WordsPath); err != nil {
		return nil, err
	}
	return local, nil
}

func createTopic(broker, topic string) error {
	conn, err := kafka.DialContext(context.Background(), "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}
