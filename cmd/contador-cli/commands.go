package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"contador/internal/cli"
	"contador/internal/core"
	"contador/internal/log"
	"contador/internal/narrative"
	"contador/internal/services"
)

var commands = []subcommands.Command{
	&contextCmd{},
	&askCmd{},
	&snapshotCmd{},
	&compareCmd{},
	&rollbackCmd{},
}

// openApp wires the configured backend. Logs go to stdout, so the default
// level is raised to warn to keep command output readable.
func openApp(ctx context.Context, opts cli.AppOptions) *cli.App {
	cli.LoadEnvFile()
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "warn")
	}
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(ctx, logger, cfg)
	return cli.NewApp(ctx, logger, cfg, res, opts)
}

// target holds the family and period flags shared by every command.
type target struct {
	family int64
	year   int
	month  int
}

func (t *target) setFlags(f *flag.FlagSet) {
	f.Int64Var(&t.family, "family", 1, "Family ID.")
	f.IntVar(&t.year, "year", 0, "Year of the period (defaults to the current month).")
	f.IntVar(&t.month, "month", 0, "Month of the period, 1-12 (defaults to the current month).")
}

// resolve validates the flags. A zero year and month select the current period.
func (t *target) resolve(app *cli.App) (int64, core.Period, error) {
	if t.family <= 0 {
		return 0, core.Period{}, fmt.Errorf("%w: %d", core.ErrInvalidFamily, t.family)
	}
	if t.year == 0 && t.month == 0 {
		return t.family, app.Advisor.CurrentPeriod(), nil
	}
	p, err := core.NewPeriod(t.year, t.month)
	return t.family, p, err
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

type contextCmd struct {
	target
	query string
}

func (*contextCmd) Name() string     { return "context" }
func (*contextCmd) Synopsis() string { return "print the financial context of a period" }
func (*contextCmd) Usage() string {
	return `contador-cli context [-family <id>] [-year <yyyy> -month <mm>] [-q <query>]

  Prints the household totals, the detail of the transactions matching the
  query and the comparison against earlier months.
`
}

func (c *contextCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.StringVar(&c.query, "q", "", "Question used to pick categories. Empty shows every category.")
}

func (c *contextCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app := openApp(ctx, cli.AppOptions{})
	defer app.Close()

	family, period, err := c.resolve(app)
	if err != nil {
		return fail(err)
	}
	fc, err := app.Advisor.BuildContext(ctx, family, period, c.query)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Período %s\n\n", fc.Period)
	fmt.Println(narrative.RenderContext(fc) + narrative.RenderComparison(fc))
	return subcommands.ExitSuccess
}

type askCmd struct {
	target
	question   string
	noExpenses bool
	stream     bool
	promptOnly bool
}

func (*askCmd) Name() string     { return "ask" }
func (*askCmd) Synopsis() string { return "ask the advisor a question" }
func (*askCmd) Usage() string {
	return `contador-cli ask [-family <id>] [-year <yyyy> -month <mm>] [-no-expenses] [-stream] [-prompt] <question>

  Answers a question with the family's data attached. The question may be
  given with -q or as the remaining arguments.
`
}

func (c *askCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.StringVar(&c.question, "q", "", "The question.")
	f.BoolVar(&c.noExpenses, "no-expenses", false, "Do not attach the family's data to the prompt.")
	f.BoolVar(&c.stream, "stream", false, "Print the answer as it is generated.")
	f.BoolVar(&c.promptOnly, "prompt", false, "Print the prompt instead of calling the generator.")
}

func (c *askCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	question := c.question
	if question == "" {
		question = strings.Join(f.Args(), " ")
	}

	app := openApp(ctx, cli.AppOptions{Narrator: !c.promptOnly})
	defer app.Close()

	family, period, err := c.resolve(app)
	if err != nil {
		return fail(err)
	}
	req := services.AskRequest{
		FamilyID:        family,
		Question:        question,
		Period:          period,
		IncludeExpenses: !c.noExpenses,
	}

	if c.promptOnly {
		prompt, _, err := app.Advisor.Prepare(ctx, req)
		if err != nil {
			return fail(err)
		}
		fmt.Println(prompt)
		return subcommands.ExitSuccess
	}

	if c.stream {
		resp, err := app.Advisor.AskStream(ctx, req, func(fragment string) error {
			_, err := io.WriteString(os.Stdout, fragment)
			return err
		})
		if err != nil {
			return fail(err)
		}
		fmt.Println()
		printSources(resp)
		return subcommands.ExitSuccess
	}

	resp, err := app.Advisor.Ask(ctx, req)
	if errors.Is(err, services.ErrNoNarrator) {
		return fail(fmt.Errorf("%w: set GEMINI_API_KEY or use -prompt", err))
	}
	if err != nil {
		return fail(err)
	}
	fmt.Println(resp.Answer)
	printSources(resp)
	return subcommands.ExitSuccess
}

func printSources(resp services.AskResponse) {
	if resp.KnowledgeFile != "" {
		fmt.Fprintf(os.Stderr, "knowledge: %s\n", resp.KnowledgeFile)
	}
	fmt.Fprintf(os.Stderr, "transactions: %d\n", resp.TransactionsIncluded)
}

type snapshotCmd struct {
	target
	async bool
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "recompute the monthly snapshots of a period" }
func (*snapshotCmd) Usage() string {
	return `contador-cli snapshot [-family <id>] [-year <yyyy> -month <mm>] [-async]

  Recomputes one snapshot row per category for the period. With -async the
  request is published to the broker for snapshot-worker to process.
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.BoolVar(&c.async, "async", false, "Publish the request instead of recomputing here.")
}

func (c *snapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app := openApp(ctx, cli.AppOptions{Broker: c.async})
	defer app.Close()

	family, period, err := c.resolve(app)
	if err != nil {
		return fail(err)
	}
	if c.async {
		if err := app.Snapshots.RequestRecompute(ctx, family, period); err != nil {
			return fail(err)
		}
		fmt.Printf("Recompute of %s requested for family %d\n", period, family)
		return subcommands.ExitSuccess
	}
	n, err := app.Snapshots.Recompute(ctx, family, period)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Wrote %d snapshot rows for %s (family %d)\n", n, period, family)
	return subcommands.ExitSuccess
}

type compareCmd struct {
	target
	lookback int
	refresh  bool
}

func (*compareCmd) Name() string     { return "compare" }
func (*compareCmd) Synopsis() string { return "compare a period against earlier snapshots" }
func (*compareCmd) Usage() string {
	return `contador-cli compare [-family <id>] [-year <yyyy> -month <mm>] [-lookback <n>] [-refresh]

  Prints the variance of total spend and average ticket per category
  against the nearest earlier month within the lookback window.
`
}

func (c *compareCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.IntVar(&c.lookback, "lookback", 0, "Months to search for a prior snapshot (defaults to COMPARISON_LOOKBACK).")
	f.BoolVar(&c.refresh, "refresh", false, "Recompute the period before comparing.")
}

func (c *compareCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app := openApp(ctx, cli.AppOptions{})
	defer app.Close()

	family, period, err := c.resolve(app)
	if err != nil {
		return fail(err)
	}
	if c.refresh {
		if _, err := app.Snapshots.Recompute(ctx, family, period); err != nil {
			return fail(err)
		}
	}
	lookback := c.lookback
	if lookback == 0 {
		lookback = app.Snapshots.Lookback()
	}
	metrics, err := app.Snapshots.Compare(ctx, family, period, lookback)
	if err != nil {
		return fail(err)
	}
	if len(metrics) == 0 {
		fmt.Printf("No snapshots for %s (family %d)\n", period, family)
		return subcommands.ExitSuccess
	}
	fc := core.FinancialContext{FamilyID: family, Period: period, Comparison: metrics, ComparisonAvailable: true}
	fmt.Println(strings.TrimPrefix(narrative.RenderComparison(fc), "\n"))
	return subcommands.ExitSuccess
}

type rollbackCmd struct {
	target
}

func (*rollbackCmd) Name() string     { return "rollback" }
func (*rollbackCmd) Synopsis() string { return "delete the snapshots of a period" }
func (*rollbackCmd) Usage() string {
	return `contador-cli rollback -family <id> -year <yyyy> -month <mm>

  Removes every snapshot row of the period. Transactions are untouched.
`
}

func (c *rollbackCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *rollbackCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.year == 0 || c.month == 0 {
		return fail(fmt.Errorf("%w: -year and -month are required", core.ErrInvalidPeriod))
	}
	app := openApp(ctx, cli.AppOptions{})
	defer app.Close()

	family, period, err := c.resolve(app)
	if err != nil {
		return fail(err)
	}
	n, err := app.Snapshots.Rollback(ctx, family, period)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Removed %d snapshot rows for %s (family %d)\n", n, period, family)
	return subcommands.ExitSuccess
}
