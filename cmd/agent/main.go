package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

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
	feedFile   = flag.String("feed", "", "JSONL message feed; empty reads stdin")
)

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}

func buildSource() (intake.Source, error) {
	if *feedFile != "" {
		return intake.NewFileSource(*feedFile)
	}
	return intake.NewReaderSource("stdin", os.Stdin)
}

// pump forwards every feed message into the engine and stops the engine once
// the feed is exhausted. A closed feed is a normal shutdown, not an error.
func pump(ctx context.Context, source intake.Source, eng *enginepkg.Engine) error {
	msgs := make(chan intake.Message, 64)
	srcErr := make(chan error, 1)
	go func() { srcErr <- source.Run(ctx, msgs) }()

	for msg := range msgs {
		if err := eng.Submit(ctx, msg); err != nil {
			if errors.Is(err, enginepkg.ErrStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	if err := <-srcErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logx.Info("message feed exhausted, shutting down")
	eng.Stop()
	return nil
}

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	defer logx.Close()

	cli.LogConfigSummary(cfg)

	svcCtx, err := svc.NewServiceContext(cfg)
	if err != nil {
		fatalf("build service context: %v", err)
	}
	defer svcCtx.Close()

	source, err := buildSource()
	if err != nil {
		fatalf("build message source: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svcCtx.Engine.Run(gctx) })
	g.Go(func() error { return pump(gctx, source, svcCtx.Engine) })

	logx.Infof("agent started: mode=%s venue=%s classifier=%s", cfg.Mode, svcCtx.Venue.Name(), svcCtx.Classifier.Backend())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fatalf("agent exited with error: %v", err)
	}
	logx.Info("agent stopped")
}
