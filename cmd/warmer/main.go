package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "atlas-api/internal/cache"
	"atlas-api/internal/cli"
	"atlas-api/internal/config"
	"atlas-api/internal/svc"
	"atlas-api/internal/warmer"
	"atlas-api/pkg/llm"
)

const shutdownTimeout = 10 * time.Second // Grace period for shutdown

var configFile = flag.String("f", "etc/atlas.yaml", "the config file")

func main() {
	once := flag.Bool("once", false, "run a single warm cycle and exit")
	flag.Parse()

	c := config.MustLoad(*configFile)
	logx.MustSetup(c.Log)
	logx.DisableStat()
	cli.LogConfigSummary(c)

	if len(c.Watchlist) == 0 {
		logx.Error("warmer: watchlist is empty, nothing to warm")
		os.Exit(1)
	}

	// The warmer never reasons; a stub backend keeps the LLM section optional.
	ctx, err := svc.NewServiceContext(context.Background(), *c, svc.WithBackend(llm.BackendFunc(
		func(context.Context, string, string, string) (string, error) { return "", llm.ErrEmptyReply },
	)))
	if err != nil {
		logx.Errorf("warmer: build service context: %v", err)
		os.Exit(1)
	}
	defer ctx.Close()

	opts := []warmer.Option{}
	if ctx.Redis != nil {
		lock := redis.NewRedisLock(ctx.Redis, cachekeys.WarmerLockKey())
		lock.SetExpire(int(cachekeys.WarmerLockTTL(ctx.TTL).Seconds()))
		opts = append(opts, warmer.WithLocker(lock))
	}
	if ctx.MarketCache != nil {
		opts = append(opts, warmer.WithPurger(ctx.MarketCache))
	}
	w, err := warmer.New(ctx.Fetcher, c.Watchlist, opts...)
	if err != nil {
		logx.Errorf("warmer: %v", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		w.RunOnce(runCtx)
		return
	}

	scheduler := cron.New()
	if _, err := w.Schedule(runCtx, scheduler, c.WarmSchedule); err != nil {
		logx.Errorf("warmer: %v", err)
		os.Exit(1)
	}
	scheduler.Start()
	logx.Infof("warmer: started schedule=%q symbols=%v", c.WarmSchedule, c.Watchlist)

	// Warm immediately so the first interactive runs hit the cache.
	w.RunOnce(runCtx)

	<-runCtx.Done()
	logx.Info("warmer: shutdown signal received, stopping scheduler...")
	stopped := scheduler.Stop()
	select {
	case <-stopped.Done():
		logx.Info("warmer: stopped")
	case <-time.After(shutdownTimeout):
		logx.Error("warmer: shutdown timed out")
	}
}
