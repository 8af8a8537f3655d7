package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/ruslano69/ezsearch/pkg/session"
	ezt "github.com/ruslano69/ezsearch/pkg/table"
)

const shellPrompt = "ezsearch> "

func newShellCmd(root *rootOptions) *cobra.Command {
	var historyFile string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: search, select rows, open detail panels",
		Long: `Starts an interactive session. A plain line runs a search for that key;
dot commands select rows, run detail queries, filter, sort and export.
Type .help for the command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if historyFile == "" {
				if home, err := os.UserHomeDir(); err == nil {
					historyFile = filepath.Join(home, ".ezsearch_history")
				}
			}
			return runShell(cmd, app, historyFile, root.format)
		},
	}
	cmd.Flags().StringVar(&historyFile, "history", "", "history file (default ~/.ezsearch_history)")
	return cmd
}

// shell - interactive state on top of a session
type shell struct {
	cmd    *cobra.Command
	app    *App
	format string
	out    io.Writer
	errOut io.Writer
}

func runShell(cmd *cobra.Command, app *App, historyFile, format string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newShellCompleter(app),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	sh := &shell{cmd: cmd, app: app, format: format, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}

	_, _ = fmt.Fprintf(sh.out, "Ez Search %s (%s)\n", Version, app.Config.Name)
	_, _ = fmt.Fprintln(sh.out, "Type a key to search, .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(sh.out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ".quit" || line == ".exit" {
			return nil
		}

		if err := sh.exec(line); err != nil {
			_, _ = fmt.Fprintf(sh.errOut, "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(sh.out)
	}
}

func newShellCompleter(app *App) *readline.PrefixCompleter {
	var kinds []readline.PrefixCompleterInterface
	for _, panel := range app.Catalog.Details.Panels {
		var items []readline.PrefixCompleterInterface
		for _, kind := range app.Catalog.Kinds(panel) {
			items = append(items, readline.PcItem(kind))
		}
		kinds = append(kinds, readline.PcItem(panel, items...))
	}

	var subKinds []readline.PrefixCompleterInterface
	for _, kind := range app.Catalog.SubSearchKinds() {
		subKinds = append(subKinds, readline.PcItem(kind))
	}

	var tables []readline.PrefixCompleterInterface
	for _, id := range app.Session.Tables() {
		tables = append(tables, readline.PcItem(string(id)))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(".search"),
		readline.PcItem(".select"),
		readline.PcItem(".detail", kinds...),
		readline.PcItem(".sub", subKinds...),
		readline.PcItem(".filter", tables...),
		readline.PcItem(".date", tables...),
		readline.PcItem(".clear", tables...),
		readline.PcItem(".sort", tables...),
		readline.PcItem(".export", tables...),
		readline.PcItem(".show", tables...),
		readline.PcItem(".tables"),
		readline.PcItem(".kinds"),
		readline.PcItem(".breakers"),
		readline.PcItem(".format",
			readline.PcItem(FormatTable),
			readline.PcItem(FormatMarkdown),
			readline.PcItem(FormatCSV),
			readline.PcItem(FormatJSON),
		),
		readline.PcItem(".help"),
		readline.PcItem(".quit"),
	)
}

// exec runs one shell line
func (sh *shell) exec(line string) error {
	if !strings.HasPrefix(line, ".") {
		return sh.search(line)
	}

	parts := strings.Fields(line)
	command, args := strings.ToLower(parts[0]), parts[1:]
	s := sh.app.Session
	ctx := sh.cmd.Context()

	switch command {
	case ".search":
		if len(args) == 0 {
			return errors.New("usage: .search KEY")
		}
		return sh.search(strings.Join(args, " "))

	case ".select":
		if len(args) != 1 {
			return errors.New("usage: .select ROW")
		}
		row, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid row %q", args[0])
		}
		sel, err := s.Select(row)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(sh.out, "selected row %d, key %s\n", sel.Row, sel.Key)
		for _, panel := range sh.app.Catalog.Details.Panels {
			_, _ = fmt.Fprintf(sh.out, "  %s: %s\n", panel, strings.Join(sel.Kinds[panel], ", "))
		}
		return nil

	case ".detail":
		if len(args) != 2 {
			return errors.New("usage: .detail PANEL KIND")
		}
		tbl, err := s.RunDetail(ctx, args[1], args[0])
		if err != nil {
			return err
		}
		return renderTable(sh.out, tbl, sh.format)

	case ".sub":
		if len(args) != 1 {
			return errors.New("usage: .sub KIND")
		}
		tbl, err := s.SubSearch(ctx, args[0])
		if err != nil {
			return err
		}
		return renderTable(sh.out, tbl, sh.format)

	case ".filter":
		if len(args) < 3 {
			return errors.New("usage: .filter TABLE COLUMN TEXT")
		}
		return sh.filter(session.TableID(args[0]), args[1], ezt.Contains(strings.Join(args[2:], " ")))

	case ".date":
		if len(args) != 3 {
			return errors.New("usage: .date TABLE COLUMN YYYY-MM-DD|FROM..TO")
		}
		f, err := ezt.ParseDateFilter(args[2])
		if err != nil {
			return err
		}
		return sh.filter(session.TableID(args[0]), args[1], f)

	case ".clear":
		if len(args) != 2 {
			return errors.New("usage: .clear TABLE COLUMN")
		}
		diags, err := s.ClearFilter(session.TableID(args[0]), args[1])
		if err != nil {
			return err
		}
		renderDiagnostics(sh.errOut, "", diags)
		return sh.show(session.TableID(args[0]))

	case ".sort":
		if len(args) != 2 {
			return errors.New("usage: .sort TABLE COLUMN")
		}
		dir, err := s.Sort(session.TableID(args[0]), args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(sh.out, "sorted by %s %s\n", args[1], dir)
		return sh.show(session.TableID(args[0]))

	case ".export":
		if len(args) < 1 {
			return errors.New("usage: .export TABLE [LABEL]")
		}
		label := strings.Join(args[1:], " ")
		res, err := s.ExportVisible(ctx, session.TableID(args[0]), label)
		if res != nil {
			_, _ = fmt.Fprintf(sh.out, "✓ Exported %d rows to %s\n", res.Rows, res.Path)
			if res.Location != "" {
				_, _ = fmt.Fprintf(sh.out, "✓ Uploaded to %s\n", res.Location)
			}
		}
		return err

	case ".show":
		id := session.Primary
		if len(args) > 0 {
			id = session.TableID(args[0])
		}
		return sh.show(id)

	case ".tables":
		for _, id := range s.Tables() {
			tbl, _ := s.Table(id)
			_, _ = fmt.Fprintf(sh.out, "%-10s %d of %d rows\n", id, tbl.VisibleCount(), tbl.RowCount())
		}
		return nil

	case ".kinds":
		printKinds(sh.out, sh.app)
		return nil

	case ".breakers":
		if sh.app.Breakers == nil {
			_, _ = fmt.Fprintln(sh.out, "circuit breakers are disabled")
			return nil
		}
		for _, st := range sh.app.Breakers.StatsAll() {
			_, _ = fmt.Fprintf(sh.out, "%-12s %-9s failures=%d requests=%d\n",
				st.Name, st.State, st.Counts.ConsecutiveFailures, st.Counts.Requests)
		}
		return nil

	case ".format":
		if len(args) != 1 {
			return errors.New("usage: .format table|md|csv|json")
		}
		sh.format = args[0]
		return nil

	case ".help":
		printShellHelp(sh.out)
		return nil

	default:
		return fmt.Errorf("unknown command %s (try .help)", command)
	}
}

func (sh *shell) search(key string) error {
	tbl, res, err := sh.app.Session.Search(sh.cmd.Context(), key)
	if err != nil {
		return err
	}
	if err := renderTable(sh.out, tbl, sh.format); err != nil {
		return err
	}
	renderDiagnostics(sh.errOut, res.Summary(), res.Diagnostics)
	return nil
}

func (sh *shell) filter(id session.TableID, column string, f ezt.Filter) error {
	diags, err := sh.app.Session.SetFilter(id, column, f)
	if err != nil {
		return err
	}
	if err := sh.show(id); err != nil {
		return err
	}
	renderDiagnostics(sh.errOut, "", diags)
	return nil
}

func (sh *shell) show(id session.TableID) error {
	tbl, err := sh.app.Session.Table(id)
	if err != nil {
		return err
	}
	return renderTable(sh.out, tbl, sh.format)
}

func printShellHelp(w io.Writer) {
	_, _ = fmt.Fprintln(w, `KEY                           search every source for KEY
.search KEY                   same as above
.select ROW                   select a row of the primary table
.detail PANEL KIND            run a detail query for the selection
.sub KIND                     run a sub-search
.filter TABLE COLUMN TEXT     keep rows whose COLUMN contains TEXT
.date TABLE COLUMN DATE       keep rows on DATE or within FROM..TO
.clear TABLE COLUMN           remove the filter on COLUMN
.sort TABLE COLUMN            sort by COLUMN (repeat to reverse)
.export TABLE [LABEL]         export visible rows
.show [TABLE]                 print a table (default primary)
.tables                       list tables and row counts
.kinds                        list detail and sub-search kinds
.breakers                     circuit breaker state per source
.format FORMAT                output format: table, md, csv, json
.quit                         exit`)
}
