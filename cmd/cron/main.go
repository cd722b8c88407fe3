package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/conf"
	"xinyuan_tech/clinic-billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

// CronApp holds the usecases the scheduled jobs run against.
type CronApp struct {
	WebhookUsecase *biz.WebhookUsecase
}

func newLogger(c *conf.Log) log.Logger {
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "clinic-billing-cron",
	)
}

func main() {
	flag.Parse()

	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	bc.ApplyEnvOverrides()
	if err := bc.Validate(); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}

	app, cleanup, err := wireApp(&bc)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	cronScheduler := cron.New(cron.WithSeconds())

	// 1. Stale log sweep - every 10 minutes. Rows left at processing after
	// a crash are finalized as errors so they show up in the audit log.
	_, err = cronScheduler.AddFunc("0 */10 * * * *", func() {
		stdlog.Println("[CRON] Starting stale webhook log sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		count, err := app.WebhookUsecase.SweepStaleLogs(ctx, constants.StaleProcessingAfter)
		if err != nil {
			stdlog.Printf("[CRON] Error sweeping stale webhook logs: %v", err)
		} else if count > 0 {
			stdlog.Printf("[CRON] Finalized %d stale webhook log rows", count)
		}
		stdlog.Println("[CRON] Finished stale webhook log sweep")
	})
	if err != nil {
		stdlog.Printf("Failed to add stale sweep job: %v", err)
	}

	// 2. Delivery report - every day at 08:00.
	_, err = cronScheduler.AddFunc("0 0 8 * * *", func() {
		stdlog.Println("[CRON] Starting webhook delivery report...")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		since := time.Now().UTC().Add(-24 * time.Hour)
		counts, err := app.WebhookUsecase.DeliveryReport(ctx, since)
		if err != nil {
			stdlog.Printf("[CRON] Error building delivery report: %v", err)
			return
		}

		stdlog.Printf("[CRON] Webhook deliveries last 24h: success=%d, error=%d, processing=%d",
			counts[constants.LogStatusSuccess], counts[constants.LogStatusError], counts[constants.LogStatusProcessing])
		stdlog.Println("[CRON] Finished webhook delivery report")
	})
	if err != nil {
		stdlog.Printf("Failed to add delivery report job: %v", err)
	}

	cronScheduler.Start()
	stdlog.Println("========================================")
	stdlog.Println("Cron jobs started successfully")
	stdlog.Println("Scheduled jobs:")
	stdlog.Println("  - Stale log sweep:   Every 10 minutes")
	stdlog.Println("  - Delivery report:   Every day at 08:00")
	stdlog.Println("========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stdlog.Println("Shutting down gracefully...")

	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		stdlog.Println("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		stdlog.Println("Cron jobs forced to stop after timeout")
	}
}
