package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

// seedActor publishes the platform defaults.
var seedActor = walkthrough.Actor{ID: "admin-cli", Role: walkthrough.RoleSuperAdmin}

// manifest lists the default walkthroughs to publish. File paths are relative to the manifest.
type manifest struct {
	Documents []manifestEntry `yaml:"documents"`
}

type manifestEntry struct {
	File      string `yaml:"file"`
	Format    string `yaml:"format"`
	Label     string `yaml:"label"`
	ClassCode string `yaml:"classCode"`
	Token     string `yaml:"token"`
}

func readManifest(path string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, errors.Wrap(err, "reading manifest")
	}
	if err = yaml.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "decoding manifest")
	}
	if len(m.Documents) == 0 {
		return m, errors.New("manifest lists no documents")
	}
	for i, e := range m.Documents {
		if e.File == "" {
			return m, errors.Errorf("document %d: file is required", i+1)
		}
	}
	return m, nil
}

// formatOf returns the explicit format, or the one of the file extension.
func formatOf(format, file string) (walkthrough.Format, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(file), ".")
	}
	f, err := walkthrough.ParseFormat(format)
	return f, errors.Wrapf(err, "%s", file)
}

// seed imports every manifest document as a platform default and publishes it,
// superseding the previously published default of the same token.
func (cli *commandLine) seed(manifestPath string) error {
	m, err := readManifest(manifestPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(manifestPath)
	ctx := context.Background()

	for _, e := range m.Documents {
		path := e.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		format, err := formatOf(e.Format, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "reading walkthrough")
		}

		req := walkthrough.ImportRequest{
			Format:    format,
			Data:      data,
			Filename:  filepath.Base(path),
			Label:     e.Label,
			ClassCode: e.ClassCode,
			Token:     e.Token,
		}
		// nothing is stored unless the script can be published
		proj, err := cli.svc.PreviewImport(ctx, seedActor, req)
		if err != nil {
			return errors.Wrapf(err, "importing %s", e.File)
		}
		if !proj.Validation.OK {
			return errors.Wrapf(&walkthrough.InvalidScriptError{Problems: proj.Validation.Problems}, "importing %s", e.File)
		}

		doc, _, err := cli.svc.Import(ctx, seedActor, req)
		if err != nil {
			return errors.Wrapf(err, "importing %s", e.File)
		}
		if doc, err = cli.svc.Submit(ctx, seedActor, doc.ID, doc.Revision); err != nil {
			return errors.Wrapf(err, "submitting %s", e.File)
		}
		if doc, err = cli.svc.ApproveAndPublish(ctx, seedActor, doc.ID, doc.Revision); err != nil {
			return errors.Wrapf(err, "publishing %s", e.File)
		}
		_, _ = fmt.Fprintf(cli.out, "published %s v%d (%s)\n", doc.Token, doc.Version.Int, doc.ID)
	}
	return nil
}
