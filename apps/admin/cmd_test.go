package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
	"github.com/cdlbuddy/cdltrainer/storage/database/inmem"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	parsers := walkthrough.NewParsers(nil)
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		svc: walkthrough.NewService(walkthrough.ServiceDeps{
			Repo:    inmemdb.NewWalkthroughRepository(db),
			Parsers: parsers,
		}),
		parsers: parsers,
		out:     out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if !strings.Contains(err.Error(), tt.wantErrStr) {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	return path
}

func Test_commandLine_usage(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "seed: no file", args: []string{"seed"}, wantErr: errHelp},
		{name: "validate: no file", args: []string{"validate", "-format", "csv"}, wantErr: errHelp},
		{name: "validate: unknown flag", args: []string{"validate", "-lol"}, wantErrStr: "flag provided but not defined: -lol"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var gotDir string
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		gotDir = dir
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "walkthrough_tags", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	if gotDir != "migrations" {
		t.Errorf("goose ran in %q, want migrations", gotDir)
	}
}

func Test_commandLine_validate(t *testing.T) {
	cli, out := setup(t)
	dir := t.TempDir()
	valid := writeFile(t, dir, "class-a.md", "---\nlabel: Class A\n---\n# Brakes\n\n- Pump the brakes [must]\n- Check the pads [required]\n")
	invalid := writeFile(t, dir, "class-b.json", `[{"section": "Brakes", "steps": [{"label": "Pads"}]}]`)
	noExt := writeFile(t, dir, "class-c", "section,script\nBrakes,Pump the brakes\n")

	tests := []struct {
		cliTest
		wantOut string
	}{
		{cliTest: cliTest{name: "valid", args: []string{"validate", "-file", valid}}, wantOut: "Class A\n1 sections, 2 steps (1 must-say, 1 required)\nok\n"},
		{cliTest: cliTest{name: "invalid", args: []string{"validate", "-file", invalid}, wantErr: errInvalid}, wantOut: "script text is required"},
		{cliTest: cliTest{name: "explicit format", args: []string{"validate", "-format", "csv", "-file", noExt}}, wantOut: "ok\n"},
		{cliTest: cliTest{name: "unknown format", args: []string{"validate", "-file", noExt}, wantErrStr: walkthrough.ErrUnknownFormat.Error()}},
		{cliTest: cliTest{name: "spreadsheets unavailable", args: []string{"validate", "-format", "xlsx", "-file", noExt}, wantErrStr: walkthrough.ErrFormatUnavailable.Error()}},
		{cliTest: cliTest{name: "missing file", args: []string{"validate", "-file", filepath.Join(dir, "nope.md")}, wantErrStr: "reading walkthrough"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.check(t, cli.run(args))
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want %q", out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_seed(t *testing.T) {
	cli, out := setup(t)
	dir := t.TempDir()
	writeFile(t, dir, "class-a.md", "# Brakes\n\n- Pump the brakes\n")
	writeFile(t, dir, "class-a-v2.csv", "section,script\nBrakes,Pump the brakes three times\n")
	writeFile(t, dir, "empty.md", "# Brakes\n")
	manifestPath := writeFile(t, dir, "manifest.yaml", `documents:
  - file: class-a.md
    label: Class A pre-trip
    classCode: A
  - file: class-a-v2.csv
    label: Class A pre-trip
    token: class-a
`)
	badManifest := writeFile(t, dir, "bad.yaml", "documents:\n  - file: empty.md\n    token: class-e\n")

	tests := []cliTest{
		{name: "seed", args: []string{"seed", "-file", manifestPath}},
		{name: "missing manifest", args: []string{"seed", "-file", filepath.Join(dir, "nope.yaml")}, wantErrStr: "reading manifest"},
		{name: "invalid document", args: []string{"seed", "-file", badManifest}, wantErrStr: "importing empty.md"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	if !strings.Contains(out.String(), "published class-a v1") || !strings.Contains(out.String(), "published class-a v2") {
		t.Errorf("output = %q, want both versions published", out.String())
	}
	doc, err := cli.svc.ResolvePublished(context.Background(), walkthrough.Actor{ID: "u-1", Role: walkthrough.RoleStudent, OrganizationID: "org1"}, "class-a")
	if err != nil {
		t.Fatalf("ResolvePublished() failed: %v", err)
	}
	if !doc.IsDefault || doc.Version.Int != 2 || doc.Script[0].Steps[0].Script != "Pump the brakes three times" {
		t.Errorf("ResolvePublished() = %+v, want the second default", doc)
	}

	left, err := cli.svc.Query(context.Background(), seedActor, walkthrough.QueryFilter{Token: "class-e", Defaults: true})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("Query() = %d documents, want no draft left by the invalid document", len(left))
	}
}
