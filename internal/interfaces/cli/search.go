package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	app "github.com/turtacn/KeyIP-PriorArt/internal/application/priorart"
	"github.com/turtacn/KeyIP-PriorArt/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-PriorArt/pkg/client"
	"github.com/turtacn/KeyIP-PriorArt/pkg/errors"
)

type searchOptions struct {
	output string
	html   bool
	server string
}

// NewSearchCmd creates the search command.
func NewSearchCmd(factory SearcherFactory) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   `search "<idea>"`,
		Short: "Search prior art for an invention idea",
		Long: "Runs the full pipeline for one idea. A vague idea yields a clarifying\n" +
			"question instead of results. Exit status is 1 only when the run fails.\n\n" +
			"With --server the search runs on a priorart-server instead of in process.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, factory, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text|json")
	cmd.Flags().BoolVar(&opts.html, "html", false, "render the report as HTML")
	cmd.Flags().StringVar(&opts.server, "server", "", "base URL of a priorart-server to search remotely")
	return cmd
}

func runSearch(cmd *cobra.Command, factory SearcherFactory, idea string, opts *searchOptions) error {
	if opts.output != "text" && opts.output != "json" {
		return errors.InvalidParam(fmt.Sprintf("unsupported output format %q", opts.output))
	}
	if strings.TrimSpace(idea) == "" {
		return errors.InvalidParam("idea text is empty")
	}
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if cliCtx.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cliCtx.Timeout)
		defer cancel()
	}

	var resp app.AnalyzeResponse
	if opts.server != "" {
		resp, err = searchRemote(ctx, opts.server, idea, cliCtx)
	} else {
		resp, err = searchLocal(ctx, factory, idea, cliCtx, opts.html)
	}
	if err != nil {
		return err
	}
	if !opts.html {
		resp.ReportHTML = ""
	}

	if opts.output == "json" {
		err = printJSON(cmd, resp)
	} else {
		err = renderText(cmd.OutOrStdout(), resp, opts.html)
	}
	if err != nil {
		return err
	}

	if resp.Status == app.ResponseError {
		cliCtx.Logger.Debug("search failed", logging.RunID(resp.RunID))
		return ErrRunFailed
	}
	return nil
}

func searchLocal(ctx context.Context, factory SearcherFactory, idea string, cliCtx *CLIContext, html bool) (app.AnalyzeResponse, error) {
	if factory == nil {
		return app.AnalyzeResponse{}, errors.New(errors.ErrCodeInternal, "search is not configured")
	}
	searcher, release, err := factory(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return app.AnalyzeResponse{}, fmt.Errorf("pipeline initialization failed: %w", err)
	}
	defer release()

	outcome := searcher.RunIdeaSearch(ctx, idea)
	return app.NewAnalyzeResponse(outcome, cliCtx.Config.Pipeline.MatchThreshold, html), nil
}

// searchRemote runs the search on a server. A failed run comes back as an
// APIError carrying the envelope, which is rendered like a local failure.
func searchRemote(ctx context.Context, server, idea string, cliCtx *CLIContext) (app.AnalyzeResponse, error) {
	c, err := client.NewClient(server,
		client.WithLogger(clientLogger{cliCtx.Logger}),
		client.WithUserAgent("priorart-cli/"+Version))
	if err != nil {
		return app.AnalyzeResponse{}, errors.InvalidParam(err.Error())
	}

	res, err := c.AnalyzeIdea(ctx, idea)
	if err != nil {
		var apiErr *client.APIError
		if stderrors.As(err, &apiErr) && apiErr.Result != nil {
			return fromClientResult(apiErr.Result), nil
		}
		return app.AnalyzeResponse{}, fmt.Errorf("remote search failed: %w", err)
	}
	return fromClientResult(res), nil
}

func fromClientResult(r *client.AnalyzeResult) app.AnalyzeResponse {
	resp := app.AnalyzeResponse{
		Status:       r.Status,
		ChatResponse: r.ChatResponse,
		PatentList:   make([]app.PatentEntry, 0, len(r.PatentList)),
		Message:      r.Message,
		SearchQuery:  r.SearchQuery,
		RunID:        r.RunID,
		ReportHTML:   r.ReportHTML,
		Degraded:     r.Degraded,
		ErrorKind:    r.ErrorKind,
		Stage:        r.Stage,
	}
	for _, p := range r.PatentList {
		resp.PatentList = append(resp.PatentList, app.PatentEntry(p))
	}
	return resp
}

type clientLogger struct{ l logging.Logger }

func (c clientLogger) Debugf(format string, args ...interface{}) { c.l.Debug(fmt.Sprintf(format, args...)) }
func (c clientLogger) Infof(format string, args ...interface{})  { c.l.Info(fmt.Sprintf(format, args...)) }
func (c clientLogger) Errorf(format string, args ...interface{}) { c.l.Error(fmt.Sprintf(format, args...)) }

func renderText(w io.Writer, resp app.AnalyzeResponse, html bool) error {
	switch resp.Status {
	case app.ResponseClarification:
		fmt.Fprintln(w, color.YellowString("More detail needed:"))
		fmt.Fprintln(w, resp.ChatResponse)
		return nil

	case app.ResponseError:
		fmt.Fprintf(w, "%s %s", color.RedString("Search failed:"), resp.ErrorKind)
		if resp.Stage != "" {
			fmt.Fprintf(w, " (stage: %s)", resp.Stage)
		}
		fmt.Fprintf(w, "\n%s\nrun: %s\n", resp.Message, resp.RunID)
		return nil
	}

	fmt.Fprintf(w, "%s %s\n\n", color.CyanString("Search query:"), resp.SearchQuery)
	if len(resp.PatentList) > 0 {
		renderPatentTable(w, resp.PatentList)
		if resp.Degraded > 0 {
			fmt.Fprintf(w, "%s %d of %d candidates could not be scored\n",
				color.YellowString("Warning:"), resp.Degraded, len(resp.PatentList))
		}
		fmt.Fprintln(w)
	}

	if html && resp.ReportHTML != "" {
		fmt.Fprint(w, resp.ReportHTML)
	} else {
		fmt.Fprintln(w, resp.ChatResponse)
	}
	return nil
}

func renderPatentTable(w io.Writer, entries []app.PatentEntry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Patent", "Title", "Applicant", "Filed", "Score", "Match"})
	table.SetAutoWrapText(false)

	for i, e := range entries {
		score := "-"
		if e.RelevanceScore != nil {
			score = fmt.Sprintf("%.0f", *e.RelevanceScore*100)
		}
		match := color.RedString(e.MatchStatus)
		if e.MatchStatus == app.MatchSuccess {
			match = color.GreenString(e.MatchStatus)
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			e.PatentID,
			truncate(e.Title, 40),
			truncate(e.Applicant, 20),
			e.ApplicationDate,
			score,
			match,
		})
	}
	table.Render()
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
