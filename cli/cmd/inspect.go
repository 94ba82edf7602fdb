package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/bundler/cli/reader"
	"github.com/pithecene-io/bundler/cli/render"
	"github.com/pithecene-io/bundler/cli/tui"
	"github.com/pithecene-io/bundler/manifest"
	"github.com/pithecene-io/bundler/types"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect reads artifacts written by earlier runs and never touches the
// network.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a manifest, a saved bundle report or a product archive",
		Subcommands: []*cli.Command{
			inspectManifestCommand(),
			inspectReportCommand(),
			inspectArchiveCommand(),
		},
	}
}

func inspectManifestCommand() *cli.Command {
	return &cli.Command{
		Name:      "manifest",
		Usage:     "Inspect an asset manifest",
		ArgsUsage: "[path] (default assets/product_manifest.json)",
		Flags:     ReadOnlyFlags(),
		Action:    inspectManifestAction,
	}
}

func inspectManifestAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = manifest.DefaultPath(types.AssetClassImages)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	// An inconsistent manifest is still shown; the exit code reports it.
	m, err := reader.Manifest(path)
	if err != nil && !errors.Is(err, reader.ErrInconsistentManifest) {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("tui") {
		if tuiErr := r.RenderTUI(tui.ViewManifest, m); tuiErr != nil {
			return tuiErr
		}
	} else {
		var data any = m
		if r.Format() == render.FormatTable {
			data = reader.ManifestTable{Manifest: m}
		}
		if renderErr := r.Render(data); renderErr != nil {
			return renderErr
		}
	}

	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return nil
}

func inspectReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Inspect a bundle report saved with bundle --report",
		ArgsUsage: "<path>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectReportAction,
	}
}

func inspectReportAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("report path required", exitFailure)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	resp, err := reader.Report(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewReport, resp.Report)
	}
	return r.Render(resp)
}

func inspectArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "archive",
		Usage:     "Summarize the latest snapshot of an fs product archive",
		ArgsUsage: "<root>",
		Flags: append(ReadOnlyFlags(), &cli.StringFlag{
			Name:  "dataset",
			Usage: "Dataset ID (default products)",
		}),
		Action: inspectArchiveAction,
	}
}

func inspectArchiveAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("archive root required", exitFailure)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for inspect archive", exitFailure)
	}

	summary, err := reader.Archive(c.Context, c.Args().First(), c.String("dataset"))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return r.Render(summary)
}
