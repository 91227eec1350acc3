package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/toybot1981/heartsphere-billing/internal/billing"
	"github.com/toybot1981/heartsphere-billing/internal/config"
	"github.com/toybot1981/heartsphere-billing/internal/db"
	"github.com/toybot1981/heartsphere-billing/internal/logging"
)

var flagConf string

func init() {
	flag.StringVar(&flagConf, "conf", "config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	cfg, errLoad := config.Load(flagConf)
	if errLoad != nil {
		log.WithError(errLoad).Fatal("load config")
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		log.WithError(errOpen).Fatal("open database")
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		log.WithError(errMigrate).Fatal("migrate database")
	}

	engine := billing.New(conn, billing.Options{
		MonitorInterval:  cfg.Billing.MonitorInterval,
		WarningThreshold: decimal.NewFromFloat(cfg.Billing.WarningThreshold),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.StartMonitor(ctx)

	scheduler := cron.New()
	if _, errCron := scheduler.AddFunc(cfg.Billing.AggregateCron, func() {
		jobCtx, jobCancel := context.WithTimeout(ctx, 30*time.Minute)
		defer jobCancel()
		if errAggregate := engine.AggregateYesterday(jobCtx); errAggregate != nil {
			log.WithError(errAggregate).Warn("nightly cost aggregation failed")
		}
	}); errCron != nil {
		log.WithError(errCron).Fatalf("invalid aggregate cron spec %q", cfg.Billing.AggregateCron)
	}
	scheduler.Start()
	log.Infof("billing engine started (monitor=%s aggregate=%q)", cfg.Billing.MonitorInterval, cfg.Billing.AggregateCron)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
}
