package main

import (
	"fmt"
	"log"
	"os"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
	logsvc "github.com/cdlbuddy/cdltrainer/services/logger"
	"github.com/cdlbuddy/cdltrainer/services/spreadsheet"
	"github.com/cdlbuddy/cdltrainer/storage/database"
	sqlxrepos "github.com/cdlbuddy/cdltrainer/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	var decoder walkthrough.SpreadsheetDecoder
	if conf.Import.SpreadsheetEnabled {
		decoder = spreadsheet.NewDecoder()
	}
	cli := commandLine{
		parsers: walkthrough.NewParsers(decoder),
		out:     os.Stdout,
	}

	// set up DB
	if needsDB(os.Args) {
		if err := database.CreateIfNotExist(conf); err != nil {
			logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
		}
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer db.Close()

		cli.db = db
		cli.svc = walkthrough.NewService(walkthrough.ServiceDeps{
			Repo:    sqlxrepos.NewWalkthroughRepository(db),
			Parsers: cli.parsers,
			Logger:  logger,
		})
	}

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
