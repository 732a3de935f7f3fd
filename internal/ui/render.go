package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/dashboard"
)

const (
	// BoxWidth is the standard width for display boxes
	BoxWidth = 64
)

// ColorScheme defines a set of colors for consistent terminal output
type ColorScheme struct {
	Header  *color.Color // For box borders
	Title   *color.Color // For titles and stage names
	Normal  *color.Color // For normal text
	Key     *color.Color // For field labels
	Pending *color.Color // For checks still running
	Passed  *color.Color // For passed checks and success messages
	Failed  *color.Color // For failed hard checks and errors
	Warning *color.Color // For soft warnings
	Link    *color.Color // For hashes and explorer links
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:  color.New(color.FgBlue, color.Bold),
		Title:   color.New(color.FgHiWhite, color.Bold),
		Normal:  color.New(color.FgWhite),
		Key:     color.New(color.FgHiCyan),
		Pending: color.New(color.FgYellow),
		Passed:  color.New(color.FgGreen, color.Bold),
		Failed:  color.New(color.FgRed),
		Warning: color.New(color.FgHiYellow, color.Bold),
		Link:    color.New(color.FgCyan, color.Underline),
	}
}

// PrintHeader prints a formatted header box with the given title
func PrintHeader(w io.Writer, cs *ColorScheme, title string) {
	if len(title) > BoxWidth-6 {
		title = title[:BoxWidth-9] + "..."
	}
	padding := BoxWidth - 4 - len(title)
	border := strings.Repeat("─", BoxWidth-2)

	cs.Header.Fprintln(w, "╭"+border+"╮")
	cs.Header.Fprint(w, "│  ")
	cs.Title.Fprint(w, title)
	cs.Header.Fprintf(w, "%s│\n", strings.Repeat(" ", padding))
	cs.Header.Fprintln(w, "╰"+border+"╯")
}

func printField(w io.Writer, cs *ColorScheme, label, value string) {
	cs.Key.Fprintf(w, "  %-10s ", label+":")
	cs.Normal.Fprintln(w, value)
}

// checkLabels are the user-facing names of the checks
var checkLabels = map[domain.CheckName]string{
	domain.CheckAddressFormat:       "Address format",
	domain.CheckAmountBounds:        "Amount within limits",
	domain.CheckNetworkReachability: "Network reachable",
	domain.CheckAddressReputation:   "Address reputation",
}

// CheckLabel returns the display name of a check
func CheckLabel(name domain.CheckName) string {
	if label, ok := checkLabels[name]; ok {
		return label
	}
	return string(name)
}

// PrintChecks prints the security check list in the order given
func PrintChecks(w io.Writer, cs *ColorScheme, checks []domain.SecurityCheckResult) {
	for _, c := range checks {
		switch c.Status {
		case domain.CheckStatusPassed:
			cs.Passed.Fprint(w, "  [✓] ")
			cs.Normal.Fprintln(w, CheckLabel(c.Name))
		case domain.CheckStatusFailed:
			marker := cs.Failed
			if !c.Name.IsHard() {
				marker = cs.Warning
			}
			marker.Fprint(w, "  [✗] ")
			cs.Normal.Fprint(w, CheckLabel(c.Name))
			if c.Detail != "" {
				marker.Fprintf(w, " - %s", c.Detail)
			}
			fmt.Fprintln(w)
		default:
			cs.Pending.Fprint(w, "  [ ] ")
			cs.Normal.Fprintln(w, CheckLabel(c.Name))
		}
	}
}

// PrintState prints everything the user needs to act on a pipeline state
func PrintState(w io.Writer, cs *ColorScheme, state domain.PipelineState) {
	PrintHeader(w, cs, "Transfer - "+string(state.Stage))

	if state.Request.AssetSymbol != "" {
		printField(w, cs, "Asset", state.Request.AssetSymbol)
		printField(w, cs, "Amount", state.Request.Amount.String()+" "+state.Request.AssetSymbol)
		printField(w, cs, "Recipient", state.Request.RecipientAddress)
		printField(w, cs, "Fee", state.Request.FeeEstimate.String()+" "+state.Request.AssetSymbol)
	}

	if len(state.Checks) > 0 {
		fmt.Fprintln(w)
		cs.Title.Fprintln(w, "Security checks")
		PrintChecks(w, cs, state.Checks)
	}

	if len(state.Errors) > 0 {
		fmt.Fprintln(w)
		for _, e := range state.Errors {
			cs.Failed.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
		}
	}

	if state.AckRequired && !state.Acknowledged {
		fmt.Fprintln(w)
		cs.Warning.Fprintln(w, "  Warnings must be acknowledged before confirming:")
		for _, warning := range state.Warnings {
			cs.Warning.Fprintf(w, "  ! %s\n", warning)
		}
	}

	if state.ExecutionError != "" {
		fmt.Fprintln(w)
		cs.Failed.Fprintf(w, "  Transfer failed: %s\n", state.ExecutionError)
	}

	if state.Receipt != nil {
		fmt.Fprintln(w)
		PrintReceipt(w, cs, *state.Receipt)
	}
}

// PrintReceipt prints the hash and explorer link of a completed transfer
func PrintReceipt(w io.Writer, cs *ColorScheme, receipt domain.Receipt) {
	cs.Passed.Fprintln(w, "  Transfer sent")
	cs.Key.Fprint(w, "  Hash:     ")
	cs.Link.Fprintln(w, receipt.Hash)
	if receipt.ExplorerURL != domain.ExplorerPlaceholder {
		cs.Key.Fprint(w, "  Explorer: ")
		cs.Link.Fprintln(w, receipt.ExplorerURL)
	}
}

// PrintAssets prints the supported assets and their limits
func PrintAssets(w io.Writer, cs *ColorScheme, assets []domain.AssetRules) {
	for _, a := range assets {
		cs.Title.Fprintf(w, "  %-6s", a.Symbol)
		cs.Normal.Fprintf(w, " %s - %s, fee %s\n", a.MinAmount.String(), a.MaxAmount.String(), a.DefaultFee.String())
	}
}

// PrintHistory prints completed transfers, one per line
func PrintHistory(w io.Writer, cs *ColorScheme, records []*domain.ReceiptRecord) {
	if len(records) == 0 {
		cs.Normal.Fprintln(w, "  No transfers yet")
		return
	}
	for _, r := range records {
		cs.Key.Fprintf(w, "  %s ", r.CompletedAt.Local().Format("2006-01-02 15:04"))
		cs.Title.Fprintf(w, "%s %s", r.Amount.String(), r.AssetSymbol)
		cs.Normal.Fprintf(w, " to %s ", r.RecipientAddress)
		cs.Link.Fprintln(w, r.Hash)
	}
}

// PrintSummary prints the outbound volume per asset
func PrintSummary(w io.Writer, cs *ColorScheme, summary *dashboard.SendSummary) {
	PrintHeader(w, cs, fmt.Sprintf("Sent since %s", summary.Since.Local().Format("2006-01-02 15:04")))
	printField(w, cs, "Transfers", fmt.Sprintf("%d", summary.TransferCount))
	for _, a := range summary.Assets {
		cs.Title.Fprintf(w, "  %-6s", a.AssetSymbol)
		cs.Normal.Fprintf(w, " %d sent, volume %s, fees %s\n", a.TransferCount, a.Volume.String(), a.Fees.String())
	}
}
