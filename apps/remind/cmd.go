package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abinesh-lmsace/pulse/core"
	"github.com/abinesh-lmsace/pulse/core/automation"
	"github.com/abinesh-lmsace/pulse/storage/database"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf         *core.Config
	logger       core.Logger
	db           *sql.DB
	orchestrator *automation.Orchestrator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  run      - execute one reminder pass and exit")
	fmt.Println("  serve    - run reminder passes on the configured cron schedule")
	fmt.Println("  migrate  - apply the database schema")
	fmt.Println("  createdb - create the database and app user if missing")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "run":
		return cli.runOnce()
	case "serve":
		return cli.serve()
	case "migrate":
		return database.Migrate(cli.db)
	case "createdb":
		return database.CreateIfNotExist(cli.conf)
	default:
		cli.printUsage()
		return errHelp
	}
}

// runOnce executes a single pass. Partial failures are already logged and
// recorded in the summary; they do not fail the command, the next pass
// retries them.
func (cli *commandLine) runOnce() error {
	summary, err := cli.orchestrator.RunReminderPass(context.Background())
	if err != nil {
		return err
	}
	for _, warning := range summary.Warnings {
		cli.logger.Warn(warning)
	}
	return nil
}

// serve runs passes on the configured cron spec until interrupted. Overlap
// is harmless: concurrent passes coordinate through ledger claims.
func (cli *commandLine) serve() error {
	engine := cron.New(cron.WithLocation(time.UTC))
	_, err := engine.AddFunc(cli.conf.CronSpec, func() {
		if _, err := cli.orchestrator.RunReminderPass(context.Background()); err != nil {
			cli.logger.Error("reminder pass failed", err)
		}
	})
	if err != nil {
		return err
	}

	cli.logger.Info(fmt.Sprintf("reminder daemon started, schedule %q", cli.conf.CronSpec))
	engine.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	cli.logger.Info("reminder daemon stopping")
	ctx := engine.Stop()
	<-ctx.Done()
	return nil
}
