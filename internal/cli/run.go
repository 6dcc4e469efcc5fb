package cli

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/foxboron/go-uefi-sct/internal/config"
	"github.com/foxboron/go-uefi-sct/sct/assert"
	"github.com/foxboron/go-uefi-sct/sct/driver"
	"github.com/foxboron/go-uefi-sct/sct/fixture"
	"github.com/foxboron/go-uefi-sct/sct/plan"
	"github.com/foxboron/go-uefi-sct/sct/report"
	"github.com/foxboron/go-uefi-sct/suites"
)

func (a *app) runCommand() *cobra.Command {
	var planFile string
	cmd := &cobra.Command{
		Use:   "run [suite|test...]",
		Short: "Run test cases and write a report",
		Long: `Run the named suites or test cases, every test case when none are named.
The exit status is non-zero when an assertion failed or a test case could
not be set up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, planFile, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&planFile, "plan", "", "run plan file")
	f.String("level", "", "test level (minimal, default, exhaustive)")
	f.StringP("format", "f", "", "report format (text, json, junit)")
	f.StringP("output", "o", "", "report file, stdout when empty")
	f.String("variables", "", "variable services device (efivarfs, sim)")
	f.String("tcg2", "", "TCG2 device (tpm, sim, none)")
	f.Bool("unset-immutable", false, "clear the immutable flag of efivarfs files before writing")
	for key, flag := range map[string]string{
		"level":                    "level",
		"report.format":            "format",
		"report.output":            "output",
		"device.variables":         "variables",
		"device.tcg2":              "tcg2",
		"efivarfs.unset_immutable": "unset-immutable",
	} {
		a.v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func (a *app) run(cmd *cobra.Command, planFile string, args []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	logger := cfg.Logger(a.stderr)

	level, fixtureDir, names := cfg.RunLevel(), cfg.FixtureDir, args
	if planFile != "" {
		p, err := plan.Load(a.fs, planFile)
		if err != nil {
			return err
		}
		logger.Info("loaded plan", "name", p.Name, "tests", len(p.Tests))
		level = p.RunLevel(level)
		if p.Fixtures != "" {
			fixtureDir = p.Fixtures
		}
		names = append(p.Tests, names...)
	}
	cases, err := suites.Select(names...)
	if err != nil {
		return err
	}

	dev, err := a.openDevices(cfg, fixtureDir, logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	var sinks []assert.Sink
	if cfg.Log.Verbose {
		sinks = append(sinks, report.Stream(a.stderr))
	}
	ctx := driver.NewContext(cmd.Context(), logger, sinks...)
	if dev.vars != nil {
		ctx.WithVariables(dev.vars)
	}
	ctx.TCG2 = dev.tcg2
	ctx.Level = level
	ctx.Fixtures = fixture.NewStore(a.fs, fixtureDir, fixture.WithMaxSize(cfg.MaxFixtureSize))

	results, runErr := driver.RunAll(ctx, cases)
	c, aborted := report.Summary(results)
	logger.Info("run finished", "passed", c.Passed, "failed", c.Failed, "warnings", c.Warning, "aborted", aborted)
	if err := a.writeReport(cfg, results); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	for _, r := range results {
		if !r.Passed() {
			return ErrFailed
		}
	}
	return nil
}

func (a *app) writeReport(cfg *config.Config, results []*driver.Result) error {
	var w io.Writer = a.stdout
	if cfg.Report.Output != "" {
		f, err := a.fs.Create(cfg.Report.Output)
		if err != nil {
			return errors.Wrap(err, "creating report")
		}
		defer f.Close()
		w = f
	}
	return errors.Wrap(report.Write(w, cfg.ReportFormat(), results), "writing report")
}
