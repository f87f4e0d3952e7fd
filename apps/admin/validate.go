package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

var errInvalid = errors.New("walkthrough is not valid")

func (cli *commandLine) validate(format, path string) error {
	f, err := formatOf(format, path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading walkthrough")
	}
	raw, err := cli.parsers.Parse(f, data)
	if err != nil {
		return err
	}

	script := walkthrough.Normalize(raw.Sections)
	stats := walkthrough.ComputeStats(script)
	if raw.Label != "" {
		_, _ = fmt.Fprintf(cli.out, "%s\n", raw.Label)
	}
	_, _ = fmt.Fprintf(cli.out, "%d sections, %d steps (%d must-say, %d required)\n",
		stats.Sections, stats.Steps, stats.MustSaySteps, stats.RequiredSteps)

	res := walkthrough.Validate(script)
	if res.OK {
		_, _ = fmt.Fprintln(cli.out, "ok")
		return nil
	}
	for _, p := range res.Problems {
		_, _ = fmt.Fprintf(cli.out, "- %s\n", p)
	}
	return errInvalid
}
