package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/abinesh-lmsace/pulse/apps/api/echo"
	"github.com/abinesh-lmsace/pulse/core"
	"github.com/abinesh-lmsace/pulse/core/automation"
	"github.com/abinesh-lmsace/pulse/core/condition"
	"github.com/abinesh-lmsace/pulse/core/credits"
	"github.com/abinesh-lmsace/pulse/core/reaction"
	emailsvc "github.com/abinesh-lmsace/pulse/services/email"
	logsvc "github.com/abinesh-lmsace/pulse/services/logger"
	"github.com/abinesh-lmsace/pulse/storage/database"
	sqlxrepos "github.com/abinesh-lmsace/pulse/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig(core.Getwd())

	var logger core.Logger
	if conf.RollbarToken != "" {
		std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
		logger = logsvc.NewRollbarLogger(std, conf)
	} else {
		logger = logsvc.NewLogrusLogger(os.Stdout, conf.Debug)
	}

	// set up DB
	sdb, err := database.Open(conf)
	errAndDie(logger, err)
	defer func() { _ = sdb.Close() }()
	db := sqlx.NewDb(sdb, conf.Database.Engine)
	errAndDie(logger, db.Ping())

	// repositories
	instanceRepo := sqlxrepos.NewInstanceRepository(db)
	availabilityRepo := sqlxrepos.NewAvailabilityRepository(db)
	ledgerRepo := sqlxrepos.NewLedgerRepository(db)
	membershipRepo := sqlxrepos.NewMembershipRepository(db)

	// services
	var deliverer core.Deliverer
	if conf.Debug {
		deliverer = emailsvc.NewConsoleService(conf)
	} else {
		deliverer = emailsvc.NewSendgridService(conf)
	}

	reactionSvc := reaction.NewService(
		[]byte(conf.SecretKey), conf.ReactionExpiry, conf.SiteURL,
		sqlxrepos.NewReactionRepository(db), sqlxrepos.NewReactionSink(db),
	)
	creditsSvc := credits.NewService(sqlxrepos.NewCreditsRepository(db), sqlxrepos.NewCreditsBalance(db))

	registry := condition.DefaultRegistry(membershipRepo, membershipRepo, membershipRepo)
	gate := automation.NewGate(availabilityRepo, registry)
	resolver := automation.NewResolver(membershipRepo, ledgerRepo, gate, conf.TaskLimitUsers)
	dispatcher := automation.NewDispatcher(deliverer, ledgerRepo, logger, conf.DeliveryTimeout)
	dispatcher.SetBranding(conf.SiteHeader, conf.SiteFooter, conf.SiteURL)
	dispatcher.SetReactionIssuer(reactionSvc)
	orchestrator := automation.NewOrchestrator(instanceRepo, resolver, dispatcher, ledgerRepo, logger, conf)
	orchestrator.SetCreditAwarder(creditsSvc)

	instanceSvc := automation.NewService(instanceRepo, availabilityRepo, ledgerRepo, reactionSvc, creditsSvc)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	app := echoapi.NewServer(conf, &echoapi.Options{
		Address:        conf.ServerAddress(),
		InstanceSvc:    instanceSvc,
		Ledger:         ledgerRepo,
		Runner:         orchestrator,
		ReactionSvc:    reactionSvc,
		Logger:         logger,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
	})
	go app.Start()

	<-shutdown
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
