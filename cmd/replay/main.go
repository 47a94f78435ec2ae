package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"tradeagent/internal/cli"
	"tradeagent/internal/config"
	"tradeagent/internal/svc"
	enginepkg "tradeagent/pkg/engine"
	"tradeagent/pkg/intake"
)

var (
	configFile = flag.String("f", "etc/tradeagent.yaml", "path to the agent configuration")
	logPath    = flag.String("log", "", "exported chat log to replay (JSONL, required)")
)

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}

func main() {
	flag.Parse()

	if *logPath == "" {
		fatalf("no chat log provided; use --log to point at a JSONL export")
	}

	cfg := config.MustLoad(*configFile)
	// Replays never touch a live venue regardless of what the config says.
	cfg.Mode = config.ModePaper
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	defer logx.Close()

	cli.LogConfigSummary(cfg)

	svcCtx, err := svc.NewServiceContext(cfg)
	if err != nil {
		fatalf("build service context: %v", err)
	}
	defer svcCtx.Close()

	source, err := intake.NewFileSource(*logPath)
	if err != nil {
		fatalf("open chat log: %v", err)
	}

	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svcCtx.Engine.Run(gctx) })
	g.Go(func() error {
		msgs := make(chan intake.Message, 64)
		srcErr := make(chan error, 1)
		go func() { srcErr <- source.Run(gctx, msgs) }()

		for msg := range msgs {
			if err := svcCtx.Engine.Submit(gctx, msg); err != nil {
				if errors.Is(err, enginepkg.ErrStopped) {
					return nil
				}
				return err
			}
		}
		if err := <-srcErr; err != nil {
			return err
		}
		svcCtx.Engine.Stop()
		return nil
	})

	logx.Infof("replaying %s through the paper venue", *logPath)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fatalf("replay exited with error: %v", err)
	}

	view := svcCtx.Portfolio.View(time.Now())
	fmt.Printf("replay complete: balance=%.2f open_positions=%d daily_pnl=%.2f\n",
		view.Balance, view.OpenCount(), view.DailyRealizedPnL)
	for _, pos := range view.Open {
		fmt.Printf("  open %s %s qty=%.4f entry=%.2f stop=%.2f\n",
			pos.Symbol, pos.Side, pos.RemainingSize, pos.EntryPrice, pos.StopLoss)
	}
}
