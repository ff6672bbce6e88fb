package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/hygeia-go/internal/contract"
	"github.com/raphaelgruber/hygeia-go/internal/dataset"
	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	guardSettings string
	guardData     string
	guardUnlocked bool
	guardJSON     bool

	healthNodes int
	healthEdges int
)

var guardrailsCmd = &cobra.Command{
	Use:   "guardrails <bootnet|nct|lasso>",
	Short: "Clamp heavy-analysis settings into safe bounds",
	Long: `Normalize settings for a heavy analysis and report every adjustment.

Settings are read from a YAML or JSON file; missing values take their
defaults. Values above the safe ceilings need --unlocked (or
advanced_unlock in the config); the hard ceilings always apply.

Examples:
  hygeia guardrails bootnet --settings bootnet.yaml
  hygeia guardrails lasso --settings lasso.yaml --data data.csv
  hygeia guardrails nct --settings nct.yaml --unlocked --json`,
	Args: cobra.ExactArgs(1),
	RunE: runGuardrails,
}

var healthCmd = &cobra.Command{
	Use:   "health [results.json]",
	Short: "Estimate whether a network can be explored interactively",
	Long: `Estimate adjacency memory and recommend exploration defaults for a
network, either from a results document or from --nodes/--edges.

Examples:
  hygeia health results.json
  hygeia health --nodes 250 --edges 6000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHealth,
}

func init() {
	guardrailsCmd.Flags().StringVar(&guardSettings, "settings", "", "YAML or JSON settings file")
	guardrailsCmd.Flags().StringVar(&guardData, "data", "", "CSV dataset (sizes the lasso high-dimension check)")
	guardrailsCmd.Flags().BoolVar(&guardUnlocked, "unlocked", false, "allow values up to the hard ceilings")
	guardrailsCmd.Flags().BoolVar(&guardJSON, "json", false, "print normalized settings as JSON")

	healthCmd.Flags().IntVar(&healthNodes, "nodes", 0, "node count")
	healthCmd.Flags().IntVar(&healthEdges, "edges", 0, "edge count")
}

func runGuardrails(cmd *cobra.Command, args []string) error {
	analysis, err := guardrail.ParseAnalysis(args[0])
	if err != nil {
		return err
	}

	var raw []byte
	if guardSettings != "" {
		if raw, err = os.ReadFile(guardSettings); err != nil {
			return err
		}
	}
	settings, err := guardrail.DecodeSettings(analysis, raw)
	if err != nil {
		return err
	}

	rows, cols := 0, 0
	if guardData != "" {
		data, err := dataset.ReadCSVFile(guardData)
		if err != nil {
			return err
		}
		rows, cols = data.NumRows(), data.NumCols()
	}

	out, ws, err := guardrail.Normalize(analysis, settings, guardUnlocked || cfg.AdvancedUnlock, rows, cols)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if guardJSON {
		return writeJSON(w, "-", map[string]any{
			"analysis": analysis,
			"settings": out,
			"warnings": ws,
		})
	}

	if err := printSettings(w, string(analysis)+":", out); err != nil {
		return err
	}
	if len(ws) == 0 {
		fmt.Fprintln(w, defaultTheme.completedStyle().Render("✓ settings within bounds"))
		return nil
	}
	fmt.Fprint(w, guardrail.RenderMarkdown(ws))
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	nodes, edges := healthNodes, healthEdges
	if len(args) == 1 {
		if err := contract.ValidateFile(contract.KindResults, args[0]); err != nil {
			return err
		}
		var results models.Results
		if err := readJSONFile(args[0], &results); err != nil {
			return err
		}
		nodes, edges = len(results.Nodes), len(results.Edges)
	}

	h := guardrail.CheckHealth(nodes, edges)
	w := cmd.OutOrStdout()
	header := defaultTheme.headerStyle()

	fmt.Fprintf(w, "%s %d nodes, %d edges\n", header.Render("Network:"), nodes, edges)
	level := defaultTheme.completedStyle()
	switch h.Memory.Level {
	case guardrail.MemoryWarning, guardrail.MemoryInfo:
		level = defaultTheme.warnStyle()
	case guardrail.MemoryCritical:
		level = defaultTheme.errorStyle()
	}
	fmt.Fprintf(w, "%s %s (adjacency %.2f MB, render ~%.2f MB)\n",
		header.Render("Memory:"), level.Render(string(h.Memory.Level)), h.Memory.AdjacencyMB, h.Memory.RenderEstimateMB)
	fmt.Fprintf(w, "  %s\n", h.Memory.Message)

	rec := h.Recommendations
	fmt.Fprintf(w, "%s labels=%t top_edges=%s threshold=%g interactive=%t\n",
		header.Render("Recommended:"), rec.ShowLabels, rec.TopEdges, rec.Threshold, rec.InteractiveEnabled)
	for _, msg := range rec.Warnings {
		fmt.Fprintln(w, defaultTheme.warnStyle().Render("  • "+msg))
	}
	if !h.SafeToRender {
		fmt.Fprintln(w, defaultTheme.errorStyle().Render("✗ not safe to render interactively"))
	}
	return nil
}
