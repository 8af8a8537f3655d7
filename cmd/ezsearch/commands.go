package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ruslano69/ezsearch/pkg/brokers"
	"github.com/ruslano69/ezsearch/pkg/session"
	ezt "github.com/ruslano69/ezsearch/pkg/table"
)

// rootOptions holds global flags
type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
	format     string
}

// viewOptions - filter, sort and export applied to a result table
type viewOptions struct {
	filters []string // column=text
	dates   []string // column=YYYY-MM-DD or column=from..to
	sort    string
	export  bool
	label   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ezsearch",
		Short: "Ez Search - multi-source lookup and detail viewer",
		Long: `Ez Search runs one lookup key against every configured source,
merges the rows into a single table and resolves detail queries for a
selected row into independent panels.

Results can be filtered, sorted and exported to CSV or Excel.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "ezsearch.yaml", "config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", FormatTable, "output format: table, md, csv, json")

	_ = root.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{FormatTable, FormatMarkdown, FormatCSV, FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newSearchCmd(opts),
		newDetailCmd(opts),
		newSubSearchCmd(opts),
		newKindsCmd(opts),
		newPingCmd(opts),
		newShellCmd(opts),
		newWatchCmd(opts),
		newInitConfigCmd(),
	)
	return root
}

// load reads config and builds the logger
func (o *rootOptions) load(cmd *cobra.Command) (*Config, zerolog.Logger, error) {
	cfg, err := LoadConfig(o.configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	return cfg, logger, nil
}

// open loads config and wires the application
func (o *rootOptions) open(cmd *cobra.Command) (*App, error) {
	cfg, logger, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	return NewApp(cmd.Context(), cfg, logger)
}

func addViewFlags(cmd *cobra.Command, v *viewOptions) {
	cmd.Flags().StringArrayVar(&v.filters, "filter", nil, "text filter column=value (repeatable)")
	cmd.Flags().StringArrayVar(&v.dates, "date", nil, "date filter column=YYYY-MM-DD or column=FROM..TO (repeatable)")
	cmd.Flags().StringVar(&v.sort, "sort", "", "sort by column (prefix with - for descending)")
	cmd.Flags().BoolVar(&v.export, "export", false, "export visible rows")
	cmd.Flags().StringVar(&v.label, "label", "", "export file label")
}

// apply runs filters, sort and export against a session table and renders it
func (v *viewOptions) apply(cmd *cobra.Command, app *App, id session.TableID, format string) error {
	out := cmd.OutOrStdout()

	for _, arg := range v.filters {
		column, value, err := splitAssignment(arg)
		if err != nil {
			return err
		}
		diags, err := app.Session.SetFilter(id, column, ezt.Contains(value))
		if err != nil {
			return err
		}
		renderDiagnostics(cmd.ErrOrStderr(), "", diags)
	}

	for _, arg := range v.dates {
		column, value, err := splitAssignment(arg)
		if err != nil {
			return err
		}
		f, err := ezt.ParseDateFilter(value)
		if err != nil {
			return err
		}
		diags, err := app.Session.SetFilter(id, column, f)
		if err != nil {
			return err
		}
		renderDiagnostics(cmd.ErrOrStderr(), "", diags)
	}

	if v.sort != "" {
		if err := sortTable(app.Session, id, v.sort); err != nil {
			return err
		}
	}

	tbl, err := app.Session.Table(id)
	if err != nil {
		return err
	}
	if err := renderTable(out, tbl, format); err != nil {
		return err
	}

	if v.export {
		res, err := app.Session.ExportVisible(cmd.Context(), id, v.label)
		if res != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d rows to %s\n", res.Rows, res.Path)
			if res.Location != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "✓ Uploaded to %s\n", res.Location)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// sortTable sorts by column; "-column" requests descending order.
// Sort toggles direction, so a second call may be needed.
func sortTable(s *session.Session, id session.TableID, arg string) error {
	want := ezt.Ascending
	column := arg
	if strings.HasPrefix(arg, "-") {
		want = ezt.Descending
		column = arg[1:]
	}

	dir, err := s.Sort(id, column)
	if err != nil {
		return err
	}
	if dir != want {
		_, err = s.Sort(id, column)
	}
	return err
}

func splitAssignment(arg string) (string, string, error) {
	column, value, ok := strings.Cut(arg, "=")
	if !ok || column == "" {
		return "", "", fmt.Errorf("expected column=value, got %q", arg)
	}
	return column, value, nil
}

// ========== Commands ==========

func newSearchCmd(root *rootOptions) *cobra.Command {
	view := &viewOptions{}
	cmd := &cobra.Command{
		Use:   "search KEY",
		Short: "Search every source for a lookup key",
		Example: `  ezsearch search 1042
  ezsearch search "world cup" --filter Description=final --sort -ExpirationDate
  ezsearch search P-7 --export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			_, res, err := app.Session.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := view.apply(cmd, app, session.Primary, root.format); err != nil {
				return err
			}
			renderDiagnostics(cmd.ErrOrStderr(), res.Summary(), res.Diagnostics)
			return nil
		},
	}
	addViewFlags(cmd, view)
	return cmd
}

func newDetailCmd(root *rootOptions) *cobra.Command {
	view := &viewOptions{}
	var (
		row   int
		panel string
	)
	cmd := &cobra.Command{
		Use:   "detail KEY KIND",
		Short: "Search for KEY, select a row and run a detail query",
		Example: `  ezsearch detail 1042 Option3
  ezsearch detail 1042 Option2 --row 2 --panel Infobox2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			_, res, err := app.Session.Search(ctx, args[0])
			if err != nil {
				return err
			}
			renderDiagnostics(cmd.ErrOrStderr(), res.Summary(), res.Diagnostics)

			sel, err := app.Session.Select(row)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "selected row %d (%s)\n", sel.Row, sel.Key)

			if _, err := app.Session.RunDetail(ctx, args[1], panel); err != nil {
				return err
			}
			return view.apply(cmd, app, session.TableID(panel), root.format)
		},
	}
	cmd.Flags().IntVar(&row, "row", 0, "row position in the search result")
	cmd.Flags().StringVar(&panel, "panel", "Infobox1", "detail panel")
	addViewFlags(cmd, view)
	return cmd
}

func newSubSearchCmd(root *rootOptions) *cobra.Command {
	view := &viewOptions{}
	cmd := &cobra.Command{
		Use:   "subsearch KIND",
		Short: "Run a sub-search query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.Session.SubSearch(cmd.Context(), args[0]); err != nil {
				return err
			}
			return view.apply(cmd, app, session.SubSearchTable, root.format)
		},
	}
	addViewFlags(cmd, view)
	return cmd
}

func newKindsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List detail and sub-search kinds per panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			printKinds(cmd.OutOrStdout(), app)
			return nil
		},
	}
}

func printKinds(w io.Writer, app *App) {
	for _, panel := range app.Catalog.Details.Panels {
		_, _ = fmt.Fprintf(w, "%s: %s\n", panel, strings.Join(app.Catalog.Kinds(panel), ", "))
	}
	_, _ = fmt.Fprintf(w, "subsearch: %s\n", strings.Join(app.Catalog.SubSearchKinds(), ", "))
}

func newPingCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity of every configured source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var failed int
			for _, name := range app.Config.ConnectionNames() {
				client, ok := app.Sources()[name]
				if !ok {
					continue
				}
				start := time.Now()
				if err := client.Ping(cmd.Context()); err != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✗ %s (%s): %v\n", name, client.GetDatabaseType(), err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %s (%s) %s\n", name, client.GetDatabaseType(), time.Since(start).Round(time.Millisecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d source(s) unavailable", failed)
			}
			return nil
		},
	}
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print operation outcomes published to the configured broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd)
			if err != nil {
				return err
			}
			if !cfg.Broker.Enabled {
				return errors.New("broker is not enabled in config")
			}

			broker, err := brokers.New(cfg.Broker)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := broker.Connect(ctx); err != nil {
				return err
			}
			defer broker.Close()

			logger.Info().Str("broker", broker.GetBrokerType()).Msg("watching outcomes")
			for {
				msg, err := broker.Receive(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}

				rec, err := brokers.Decode(msg)
				if err != nil {
					logger.Warn().Err(err).Msg("skipping malformed message")
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %-8s %-9s %-10s %-8s rows=%d/%d %s\n",
					rec.FinishedAt.Format(time.RFC3339), rec.Session, rec.Operation, rec.Table, rec.Status,
					rec.Visible, rec.Rows, watchDetail(rec.Key, rec.Kind, rec.Summary))
			}
		},
	}
}

func watchDetail(key, kind, summary string) string {
	var parts []string
	if key != "" {
		parts = append(parts, "key="+key)
	}
	if kind != "" {
		parts = append(parts, "kind="+kind)
	}
	if summary != "" {
		parts = append(parts, summary)
	}
	return strings.Join(parts, " ")
}

func newInitConfigCmd() *cobra.Command {
	var (
		dbType string
		output string
	)
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Create a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("%s already exists", output)
			}
			if err := SaveConfig(output, CreateSampleConfig(dbType)); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "✓ Created sample %s config: %s\n", dbType, output)
			_, _ = fmt.Fprintln(w, "Edit the file with your database credentials and run:")
			_, _ = fmt.Fprintf(w, "  ezsearch ping --config %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbType, "type", "mysql", "database type: mysql, postgres, mssql, sqlite")
	cmd.Flags().StringVarP(&output, "output", "o", "ezsearch.yaml", "output file")
	return cmd
}
