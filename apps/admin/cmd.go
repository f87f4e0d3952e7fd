package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db      *sqlx.DB // nil for commands that do not need the database
	svc     walkthrough.Service
	parsers walkthrough.Parsers
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                - run a goose command (up, down, status, ...) against the database")
	_, _ = fmt.Fprintln(cli.out, "  seed -file MANIFEST                   - import and publish the default walkthroughs listed in a YAML manifest")
	_, _ = fmt.Fprintln(cli.out, "  validate [-format FORMAT] -file PATH  - parse and validate a walkthrough file without storing it")
}

// needsDB reports whether the command in args runs against the database.
func needsDB(args []string) bool {
	return len(args) > 1 && (args[1] == "migrate" || args[1] == "seed")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedCmd.SetOutput(cli.out)
	seedFile := seedCmd.String("file", "", "The YAML manifest listing the walkthroughs to publish.")

	validateCmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	validateCmd.SetOutput(cli.out)
	validateFormat := validateCmd.String("format", "", "markdown, csv, spreadsheet or structured. Defaults to the file extension.")
	validateFile := validateCmd.String("file", "", "The file to validate.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedFile == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seed(*seedFile)
	case "validate":
		if err := validateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *validateFile == "" {
			validateCmd.Usage()
			return errHelp
		}
		return cli.validate(*validateFormat, *validateFile)
	default:
		cli.printUsage()
		return errHelp
	}
}
