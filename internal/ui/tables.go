// Package ui renders scoring results for the terminal. It consumes only the
// structured records the core emits; all rounding and color policy lives
// here.
package ui

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/curatorops/signalrun/internal/application"
	"github.com/curatorops/signalrun/internal/recommend"
)

var (
	goodAPR  = color.New(color.FgGreen)
	badAPR   = color.New(color.FgRed)
	mutedAPR = color.New(color.FgHiBlack)
)

// ConfigureColors disables ANSI colors when fd is not a terminal.
func ConfigureColors(fd uintptr) {
	if !term.IsTerminal(int(fd)) {
		color.NoColor = true
	}
}

// APR bands from the reference dashboard: green above 10%, red below 1%.
func formatAPR(apr float64) string {
	s := fmt.Sprintf("%.2f%%", apr)
	switch {
	case apr > 10:
		return goodAPR.Sprint(s)
	case apr < 1:
		return badAPR.Sprint(s)
	default:
		return s
	}
}

func formatOptionalAPR(apr *float64) string {
	if apr == nil {
		return mutedAPR.Sprint("-")
	}
	return formatAPR(*apr)
}

// RenderOpportunities writes the ranked opportunity table, at most limit
// rows (limit <= 0 means all).
func RenderOpportunities(w io.Writer, result *application.ScanResult, limit int) {
	opportunities := result.Opportunities
	if limit > 0 && limit < len(opportunities) {
		opportunities = opportunities[:limit]
	}

	fmt.Fprintf(w, "GRT price: $%.4f\n", result.Price)
	fmt.Fprintf(w, "Opportunities: %d (showing %d)\n\n", len(result.Opportunities), len(opportunities))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDEPLOYMENT\tSIGNAL (GRT)\tTOTAL SIGNAL (GRT)\tWEEKLY QUERIES\tEST. EARNINGS ($/Y)\tAPR")
	for i, opp := range opportunities {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%d\t%.2f\t%s\n",
			i+1, opp.ID, opp.SignalAmount, opp.SignalledTokens,
			opp.WeeklyQueries, opp.EstimatedEarnings, formatAPR(opp.APR))
	}
	tw.Flush()
}

// RenderPositions writes a wallet's positions, portfolio summary, and
// suggestions.
func RenderPositions(w io.Writer, result *application.PositionsResult) {
	fmt.Fprintf(w, "Wallet: %s\n\n", result.Wallet)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDEPLOYMENT\tYOUR SIGNAL (GRT)\tTOTAL SIGNAL (GRT)\tPORTION\tEST. EARNINGS ($/Y)\tAPR\tWEEKLY QUERIES")
	for i, p := range result.Positions {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f%%\t%.2f\t%s\t%d\n",
			i+1, p.ID, p.UserSignal, p.TotalSignal, p.PortionOwned*100,
			p.EstimatedEarnings, formatAPR(p.APR), p.WeeklyQueries)
	}
	tw.Flush()

	s := result.Summary
	fmt.Fprintf(w, "\nTotal curated signal: %.2f GRT\n", s.TotalSignal)
	fmt.Fprintf(w, "Total value: $%.2f\n", s.TotalValue)
	fmt.Fprintf(w, "Estimated annual earnings: $%.2f\n", s.TotalEarnings)
	fmt.Fprintf(w, "Overall APR: %s\n", formatAPR(s.OverallAPR))

	RenderSuggestions(w, result.Suggestions)
}

// RenderSuggestions writes the recommendation list, one numbered line each.
func RenderSuggestions(w io.Writer, suggestions []recommend.Suggestion) {
	if len(suggestions) == 0 {
		return
	}

	fmt.Fprintln(w, "\nRecommendations:")
	for _, s := range suggestions {
		switch s.Kind {
		case recommend.KindMove:
			fmt.Fprintf(w, "%d. Consider moving signal from %s (APR: %.2f%%) to %s (APR: %.2f%%)\n",
				s.Rank, s.FromID, s.FromAPR, s.ToID, s.ToAPR)
		case recommend.KindIncrease:
			fmt.Fprintf(w, "%d. Consider increasing your signal on %s to improve APR from %.2f%% to %.2f%%\n",
				s.Rank, s.FromID, s.FromAPR, s.ToAPR)
		}
	}
}

// RenderPlan writes the allocation table and the aggregate earnings
// breakdown.
func RenderPlan(w io.Writer, result *application.AllocationResult) {
	plan := result.Plan

	if plan.Reduced() {
		fmt.Fprintf(w, "Only %d deployments available after filtering (requested %d).\n\n",
			plan.Eligible, plan.Requested)
	}
	fmt.Fprintf(w, "Allocating %.2f GRT across %d deployments in steps of %.0f.\n\n",
		plan.Budget, len(plan.Rows), plan.Step)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPLOYMENT\tSIGNAL BEFORE\tSIGNAL AFTER\tAPR BEFORE\tAPR AFTER\tEARNINGS AFTER ($/Y)\tALLOCATED\tWEEKLY QUERIES")
	for _, row := range plan.Rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%s\t%s\t%.2f\t%.2f\t%d\n",
			row.ID, row.SignalBefore, row.SignalAfter,
			formatAPR(row.APRBefore), formatOptionalAPR(row.APRAfter),
			row.EarningsAfter, row.Allocated, row.WeeklyQueries)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nGRT price: $%.4f\n", result.Price)
	fmt.Fprintf(w, "Total allocated: %.2f GRT ($%.2f)\n", plan.TotalAllocated, plan.TotalAllocated*result.Price)
	fmt.Fprintln(w, "Estimated earnings:")
	fmt.Fprintf(w, "  per day:   $%.2f\n", plan.EarningsPerDay)
	fmt.Fprintf(w, "  per week:  $%.2f\n", plan.EarningsPerWeek)
	fmt.Fprintf(w, "  per month: $%.2f\n", plan.EarningsPerMonth)
	fmt.Fprintf(w, "  per year:  $%.2f\n", plan.EarningsPerYear)
	fmt.Fprintf(w, "Overall APR: %s\n", formatAPR(plan.OverallAPR))
}
