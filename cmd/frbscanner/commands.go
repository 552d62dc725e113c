package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"FRBScanner/internal/app"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/infrastructure/proposal"
)

type runCommand struct {
	DryRun bool   `long:"dry-run" description:"Write the proposal to the outbox instead of the configured channel"`
	Days   int    `long:"days" description:"Fetch window in days (default: each source's window)"`
	Report string `long:"report" description:"Write the Markdown proposal summary to this file"`
	JSON   string `long:"json" description:"Write the run summary as JSON to this file"`
}

func (c *runCommand) Execute([]string) error {
	if c.Days < 0 {
		return fmt.Errorf("--days must not be negative")
	}
	return withApp(func(ctx context.Context, a *app.Application) error {
		res, runErr := a.Run(ctx, app.RunRequest{Trigger: domain.TriggerCLI, Days: c.Days, DryRun: c.DryRun})
		if res.Summary.RunID == "" {
			return runErr
		}

		fmt.Println(renderSummary(res.Summary))

		if c.Report != "" && res.Change.Summary != "" {
			if err := os.WriteFile(c.Report, []byte(res.Change.Summary), 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
		if c.JSON != "" {
			data, err := json.MarshalIndent(res.Summary, "", "  ")
			if err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			if err := os.WriteFile(c.JSON, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
		}
		if err := writeGitHubOutput(os.Getenv("GITHUB_OUTPUT"), res.Summary); err != nil {
			return err
		}
		return runErr
	})
}

type serveCommand struct{}

func (c *serveCommand) Execute([]string) error {
	return withApp(func(ctx context.Context, a *app.Application) error {
		return a.Serve(ctx)
	})
}

type statsCommand struct {
	JSON bool `long:"json" description:"Print JSON instead of a table"`
}

func (c *statsCommand) Execute([]string) error {
	return withApp(func(ctx context.Context, a *app.Application) error {
		stats, err := a.Catalog().Stats(ctx)
		if err != nil {
			return err
		}
		if c.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		fmt.Println(renderStats(stats))
		return nil
	})
}

type exportCommand struct {
	Output string `short:"o" long:"output" description:"CSV file to write (default: stdout)"`
}

func (c *exportCommand) Execute([]string) error {
	return withApp(func(ctx context.Context, a *app.Application) error {
		out := os.Stdout
		if c.Output != "" {
			f, err := os.Create(c.Output)
			if err != nil {
				return fmt.Errorf("create %s: %w", c.Output, err)
			}
			defer f.Close()
			out = f
		}
		n, err := a.Catalog().Export(ctx, out)
		if err != nil {
			return err
		}
		if c.Output != "" {
			fmt.Printf("exported %d records to %s\n", n, c.Output)
		}
		return nil
	})
}

type applyCommand struct {
	Args struct {
		Path string `positional-arg-name:"proposal" description:"CSV or Markdown document from a merged proposal"`
	} `positional-args:"yes" required:"yes"`
}

func (c *applyCommand) Execute([]string) error {
	return withApp(func(ctx context.Context, a *app.Application) error {
		path, err := proposal.RowsPath(c.Args.Path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		n, err := a.Catalog().Apply(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("appended %d records\n", n)
		return nil
	})
}
