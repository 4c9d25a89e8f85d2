package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/database"
	"github.com/angas/elprice/hours"
	"github.com/angas/elprice/postgres"
	"github.com/angas/elprice/store"
	"github.com/angas/elprice/timeline"
	"github.com/angas/elprice/types"
	"github.com/lmittmann/tint"
)

// Prints the stored prices of a window, with missing hours filled in.
func main() {
	configPath := flag.String("config", "", "path to config file")
	startStr := flag.String("start", "", "first day, YYYY-MM-DD (default today)")
	endStr := flag.String("end", "", "day after the last one, YYYY-MM-DD (default start + 1 day)")
	raw := flag.Bool("raw", false, "only print stored prices")
	includeEnd := flag.Bool("include-end-date", false, "also print the hours of the end date")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, *startStr, *endStr, *raw, *includeEnd, logger); err != nil {
		logger.Error("prices failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath, startStr, endStr string, raw, includeEnd bool, logger *slog.Logger) error {
	cnfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	start := hours.StartOfDay(time.Now())
	if startStr != "" {
		if start, err = time.ParseInLocation("2006-01-02", startStr, time.UTC); err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
	}
	end := start.AddDate(0, 0, 1)
	if endStr != "" {
		if end, err = time.ParseInLocation("2006-01-02", endStr, time.UTC); err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var backend store.Backend
	if cnfg.Database.GetDriver() == "postgres" {
		pg, err := postgres.Connect(ctx, cnfg.Database.Dsn)
		if err != nil {
			return err
		}
		defer pg.Close()
		backend = pg
	} else {
		db, err := database.New(ctx, cnfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetLogger(logger)
		backend = db
	}

	st := store.New(logger, backend, nil)

	var records []types.PriceRecord
	if raw {
		records, err = st.GetPricesForPeriod(ctx, start, end)
	} else {
		var opts []timeline.Option
		if includeEnd || cnfg.Api.IncludeEndDate {
			opts = append(opts, timeline.IncludeEndDate())
		}
		records, err = timeline.NewService(logger, st, opts...).GetPricesForPeriod(ctx, start, end)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "start\tend\tprice\t\t")
	for _, r := range records {
		note := ""
		if r.IsPlaceholder() {
			note = "missing"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			r.Start().Format("2006-01-02 15:04"),
			r.End().Format("15:04"),
			r.Price.StringFixed(2),
			note)
	}
	return w.Flush()
}
