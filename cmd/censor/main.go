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

	log "github.com/sirupsen/logrus"

	"forum/pkg/censor"
	"forum/pkg/config"
)

func main() {
	var (
		wordsPath string
		httpAddr  string
		logLevel  string
	)

	flag.StringVar(&wordsPath, "words", "cmd/censor/forbidden.json", "Path to JSON list of banned words")
	flag.StringVar(&httpAddr, "http", ":8055", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&logLevel, "log", "info", "Log level: debug, info, warn, error.")
	flag.Parse()

	if !strings.Contains(httpAddr, ":") {
		log.Warn("[censor] use ':' before port number, e.g. ':8055'")
	}
	config.SetLogLevel(logLevel)

	c := censor.New()
	if err := c.LoadFromJSON(wordsPath); err != nil {
		log.Fatalf("[censor] failed to load word list %s: %v", wordsPath, err)
	}

	srv := &http.Server{
		Addr:    httpAddr,
		Handler: censor.NewServer(c).Router(),
	}

	go func() {
		log.Infof("[censor] starting on %v", httpAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[censor] failed to start: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[censor] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[censor] HTTP server shut down gracefully")
	}
}
