// Command billing-export writes completed tickets to an AXON import file
// and marks them exported.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rickshauling/ticketdrop/internal/billing"
	"github.com/rickshauling/ticketdrop/internal/outbox"
	"github.com/rickshauling/ticketdrop/internal/shared/config"
	"github.com/rickshauling/ticketdrop/internal/shared/db"
	"github.com/rickshauling/ticketdrop/internal/shared/logger"
	"github.com/rickshauling/ticketdrop/internal/ticket"
)

const appName = "billing-export"

var errUsage = errors.New("usage")

type cliOptions struct {
	filter billing.Filter
	opts   billing.Options
	json   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}

	cfg := config.Load()
	log := logger.NewWriter(stderr, appName, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		log.Error("config_error", slog.String("err", "DATABASE_URL is empty"))
		return 2
	}
	pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Error("db_open_failed", slog.String("err", err.Error()))
		return 1
	}
	defer func() { _ = pg.Close() }()

	c := &billing.Coordinator{
		Source:  ticket.NewPostgresStore(pg),
		Writer:  billing.FileWriter{Dir: cfg.ExportDir},
		Events:  outbox.NewPostgresRepo(pg),
		Log:     log,
		Company: cfg.CompanyName,
	}
	if err := execute(ctx, c, o, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var (
		o       cliOptions
		tickets string
		noMark  bool
	)
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.filter.DateFrom, "date-from", "", "first ticket date to include (YYYY-MM-DD)")
	fs.StringVar(&o.filter.DateTo, "date-to", "", "last ticket date to include (YYYY-MM-DD)")
	fs.StringVar(&o.filter.Customer, "customer", "", "only this customer (case-insensitive)")
	fs.StringVar(&tickets, "tickets", "", "comma-separated ticket numbers")
	fs.BoolVar(&o.filter.All, "export-all", false, "export every unexported completed ticket")
	fs.BoolVar(&o.opts.Force, "force", false, "include tickets that were already exported")
	fs.BoolVar(&noMark, "no-mark", false, "write the file without marking tickets exported")
	fs.StringVar(&o.opts.Output, "output", "", "output file (default $EXPORT_DIR/AXON_Export_<timestamp>.csv)")
	fs.BoolVar(&o.json, "json", false, "print the result as JSON")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	for _, n := range strings.Split(tickets, ",") {
		if n = strings.TrimSpace(n); n != "" {
			o.filter.Tickets = append(o.filter.Tickets, n)
		}
	}
	o.opts.Mark = !noMark

	if o.opts.Output != "" {
		abs, err := filepath.Abs(o.opts.Output)
		if err != nil {
			return cliOptions{}, err
		}
		o.opts.Output = abs
	}

	if err := o.filter.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fs.PrintDefaults()
		return cliOptions{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	return o, nil
}

func execute(ctx context.Context, c *billing.Coordinator, o cliOptions, stdout io.Writer) error {
	res, err := c.Export(ctx, o.filter, o.opts)
	if err != nil {
		return err
	}

	if o.json {
		res.Records = nil
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	for _, s := range res.Skipped {
		fmt.Fprintf(stdout, "Warning: Skipping ticket %s - %s\n", s.Number, s.Errors[0].Message)
	}
	if len(res.Tickets) == 0 {
		fmt.Fprintln(stdout, "No tickets to export")
		return nil
	}
	fmt.Fprintf(stdout, "Found %d tickets to export\n", len(res.Tickets))
	fmt.Fprintf(stdout, "Exported to: %s\n", res.Path)
	if res.Marked > 0 {
		fmt.Fprintf(stdout, "Marked %d tickets as exported\n", res.Marked)
	}
	fmt.Fprintf(stdout, "\nExport complete!\nCopy to AXON import folder: %s\n", res.BatchID)
	return nil
}
