package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/idealis-crm/wabridge/config"
	"github.com/idealis-crm/wabridge/internal/app"
	"github.com/idealis-crm/wabridge/internal/ledger"
	"github.com/idealis-crm/wabridge/internal/provider"
	"github.com/idealis-crm/wabridge/internal/session"
	"github.com/idealis-crm/wabridge/internal/webserver"
)

var (
	cfile       = flag.String("c", "wabridge.yml", "config file")
	showVersion = flag.Bool("v", false, "print version and exit")
)

var version = "dev"

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("wabridge", version)
		return
	}

	cfg := config.LoadConfig(*cfile)
	cfg.InitDirs()

	a := app.NewApplication(cfg)
	a.Init(cfg)
	defer a.Release()

	sqlDB, err := a.DB().DB()
	if err != nil {
		zap.S().Fatalf("obtain sql.DB: %v", err)
	}

	ctx := context.Background()
	wm, err := provider.NewWhatsmeow(ctx, sqlDB, app.StoreDriverName(cfg.Database.Type), cfg.WhatsApp.DeviceName)
	if err != nil {
		zap.S().Fatalf("init whatsmeow store: %v", err)
	}

	store := ledger.New(a.DB())
	manager := session.NewManager(wm, store, session.Config{
		ReconnectDelay: cfg.WhatsApp.ReconnectDelay,
		IgnoreSelf:     cfg.WhatsApp.IgnoreSelf,
		DebugQR:        cfg.Logger.Mode != "production",
	})

	if cfg.WhatsApp.ResyncInterval > 0 {
		a.ScheduleEvery(cfg.WhatsApp.ResyncInterval, "roster_resync", manager.ResyncAll)
	}

	server := webserver.NewServer(cfg, manager)
	go func() {
		if err := server.Start(); err != nil {
			zap.S().Infof("webserver stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zap.L().Info("shutdown signal received, draining sessions")

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.ShutdownAll(sctx)
	if err := server.Shutdown(sctx); err != nil {
		zap.S().Warnf("webserver shutdown: %v", err)
	}
}
