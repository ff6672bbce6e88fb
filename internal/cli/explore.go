package cli

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/explore"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	exploreThreshold float64
	exploreTopEdges  string
	exploreSigned    bool
	exploreOutput    string
	exploreTopNodes  int
)

var exploreCmd = &cobra.Command{
	Use:   "explore <results.json>",
	Short: "Compute derived network metrics for results",
	Long: `Filter the edges of a results document and compute node strength,
expected influence, bridge centrality and the maximum spanning tree backbone.

Size guardrails may raise the threshold or limit top edges for large networks;
every adjustment is reported.

Examples:
  hygeia explore results.json
  hygeia explore results.json --threshold 0.1 --top-edges 200 -o derived.json
  hygeia explore results.json --signed --nodes 20`,
	Args: cobra.ExactArgs(1),
	RunE: runExplore,
}

func init() {
	exploreCmd.Flags().Float64Var(&exploreThreshold, "threshold", 0, "minimum edge weight")
	exploreCmd.Flags().StringVar(&exploreTopEdges, "top-edges", "500", "200, 500, 1000 or all")
	exploreCmd.Flags().BoolVar(&exploreSigned, "signed", false, "compare signed weights to the threshold")
	exploreCmd.Flags().StringVarP(&exploreOutput, "output", "o", "", "write derived metrics JSON to file ('-' for stdout)")
	exploreCmd.Flags().IntVarP(&exploreTopNodes, "nodes", "n", 10, "nodes listed in the summary table")
}

func runExplore(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := session.Validate(contract.KindResults, raw); err != nil {
		return err
	}
	var results models.Results
	if err := readJSONFile(args[0], &results); err != nil {
		return err
	}
	session.LoadResults(&results)

	cfg := explore.Default()
	cfg.Threshold = exploreThreshold
	cfg.UseAbsoluteWeights = !exploreSigned
	if cfg.TopEdges, err = models.ParseTopEdges(exploreTopEdges); err != nil {
		return err
	}

	out, err := session.Explore(cmd.Context(), results.AnalysisID, cfg)
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	printWarnings(errOut, out.Warnings)
	printMessages(errOut, out.Derived.Messages)

	if exploreOutput != "" {
		return writeJSON(cmd.OutOrStdout(), exploreOutput, out.Derived)
	}
	printDerived(cmd.OutOrStdout(), out.Derived, exploreTopNodes)
	return nil
}

// printDerived renders a node table sorted by absolute strength and the
// backbone summary.
func printDerived(w io.Writer, d *models.DerivedMetrics, limit int) {
	header := defaultTheme.headerStyle()
	fmt.Fprintf(w, "%s %s (threshold %.3g, top edges %s)\n\n",
		header.Render("Analysis"), d.AnalysisID, d.Config.Threshold, d.Config.TopEdges)

	nodes := make([]string, 0, len(d.NodeMetrics.StrengthAbs))
	for id := range d.NodeMetrics.StrengthAbs {
		nodes = append(nodes, id)
	}
	slices.SortFunc(nodes, func(a, b string) int {
		sa, sb := d.NodeMetrics.StrengthAbs[a], d.NodeMetrics.StrengthAbs[b]
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return cmp.Compare(a, b)
	})
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}

	cell := lipgloss.NewStyle().Width(14).Align(lipgloss.Right)
	first := lipgloss.NewStyle().Width(20)
	row := func(cols ...string) string {
		out := first.Render(cols[0])
		for _, c := range cols[1:] {
			out += cell.Render(c)
		}
		return out
	}
	fmt.Fprintln(w, header.Render(row("node", "strength", "exp. infl.", "bridge str.", "bridge EI")))
	for _, id := range nodes {
		bs, bei := "-", "-"
		if d.Bridge.Enabled {
			bs = fmt.Sprintf("%.4f", d.NodeMetrics.BridgeStrengthAbs[id])
			bei = fmt.Sprintf("%.4f", d.NodeMetrics.BridgeExpectedInfluence[id])
		}
		fmt.Fprintln(w, row(id,
			fmt.Sprintf("%.4f", d.NodeMetrics.StrengthAbs[id]),
			fmt.Sprintf("%.4f", d.NodeMetrics.ExpectedInfluence[id]),
			bs, bei,
		))
	}

	fmt.Fprintf(w, "\n%s %d edge(s)\n", header.Render("Backbone:"), d.MST.EdgeCount)
	for _, e := range d.MST.Edges {
		fmt.Fprintf(w, "  %s -- %s  %+.4f\n", e.Source, e.Target, e.SignedWeight)
	}
}
