package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	cmnenv "hospital_locker/server/common/env"
	commonlog "hospital_locker/server/common/log"
	lockerapp "hospital_locker/server/locker/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		commonlog.Debugf("no .env file loaded: %v", err)
	}
	if err := cmnenv.Load("locker", "./config", "."); err != nil {
		log.Fatalf("read locker config: %v", err)
	}
	defer func() { _ = commonlog.Sync() }()

	cfg := lockerapp.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancelInit := context.WithTimeout(ctx, 15*time.Second)
	server, err := lockerapp.NewServer(initCtx, cfg)
	cancelInit()
	if err != nil {
		log.Fatalf("initialize locker gateway: %v", err)
	}

	go func() {
		commonlog.Infof("start locker gateway on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run locker gateway: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown locker gateway gracefully: %v", err)
	}
}
