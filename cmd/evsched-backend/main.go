package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"evsched/internal/backend"
	appLog "evsched/internal/log"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:8000", "HTTP listen address")
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Error("failed to load env file", err, "path", *envFile)
	}
	if v := os.Getenv("EVSCHED_BACKEND_LISTEN"); v != "" && !isFlagSet("listen") {
		*listen = v
	}
	appLog.SetLevel(appLog.ParseLevel(os.Getenv("EVSCHED_LOG_LEVEL")))
	defer appLog.Sync()

	server := &http.Server{
		Addr:              *listen,
		Handler:           backend.NewServer(nil).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("development backend starting", "listen", "http://"+*listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("backend server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down development backend")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLog.Error("backend forced to shutdown", err)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
