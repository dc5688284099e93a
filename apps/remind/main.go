package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

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
	defer os.Exit(0)

	conf := core.NewConfig(core.Getwd())

	var logger core.Logger
	if conf.RollbarToken != "" {
		std := log.New(os.Stdout, "REMIND : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
		logger = logsvc.NewRollbarLogger(std, conf)
	} else {
		logger = logsvc.NewLogrusLogger(os.Stdout, conf.Debug)
	}

	// set up DB
	sdb, err := database.Open(conf)
	errAndDie(logger, err)
	defer func() { _ = sdb.Close() }()
	db := sqlx.NewDb(sdb, conf.Database.Engine)

	cli := commandLine{
		conf:         conf,
		logger:       logger,
		db:           sdb,
		orchestrator: buildOrchestrator(conf, logger, db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		os.Exit(1)
	}
}

func buildOrchestrator(conf *core.Config, logger core.Logger, db *sqlx.DB) *automation.Orchestrator {
	instanceRepo := sqlxrepos.NewInstanceRepository(db)
	availabilityRepo := sqlxrepos.NewAvailabilityRepository(db)
	ledgerRepo := sqlxrepos.NewLedgerRepository(db)
	membershipRepo := sqlxrepos.NewMembershipRepository(db)

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
	return orchestrator
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
