package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"

	"atlas-api/internal/cli"
	"atlas-api/internal/config"
	"atlas-api/internal/svc"
)

var configFile = flag.String("f", "etc/atlas.yaml", "the config file")

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	c := config.MustLoad(*configFile)
	logx.MustSetup(c.Log)
	logx.DisableStat()
	cli.LogConfigSummary(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCtx, err := svc.NewServiceContext(ctx, *c)
	if err != nil {
		fatalf("build service context: %v", err)
	}
	defer svcCtx.Close()

	if err := run(ctx, svcCtx, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(flag.CommandLine.Output(), "%s: %v\n", flag.Arg(0), err)
			usage()
			os.Exit(2)
		}
		fatalf("%s: %v", flag.Arg(0), err)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: atlas [-f etc/atlas.yaml] <command> [flags]

Commands:
  analyze  -user ID -intent TEXT [-run ID] [-propose]
  approve  -user ID -order ID
  reject   -user ID -order ID [-reason TEXT]
  orders   -user ID [-limit N]
  trace    (-run ID | -user ID) [-viewer ID -role ROLE]
  runs     -user ID [-limit N]
  stats    [-since RFC3339|DURATION]
`)
}

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}
