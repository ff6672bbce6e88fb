package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/hygeia-go/internal/guardrail"
	"github.com/raphaelgruber/hygeia-go/internal/models"
	"gopkg.in/yaml.v3"
)

// writeJSON writes v as indented JSON to path, or to w when path is "" or "-".
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// readJSONFile decodes the JSON document at path into v.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func printMessages(w io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		style := defaultTheme.hintStyle()
		switch m.Level {
		case models.MessageWarning:
			style = defaultTheme.warnStyle()
		case models.MessageError:
			style = defaultTheme.errorStyle()
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("  [%s] %s: %s", m.Level, m.Code, m.Message)))
	}
}

func printWarnings(w io.Writer, ws []guardrail.Warning) {
	for _, g := range ws {
		style := defaultTheme.warnStyle()
		if g.Level == models.MessageInfo {
			style = defaultTheme.hintStyle()
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("  [%s] %s", g.Code, g.Message)))
	}
}

// printSettings writes normalized settings as an indented YAML block.
func printSettings(w io.Writer, title string, settings any) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	fmt.Fprintln(w, defaultTheme.headerStyle().Render(title))
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	return nil
}
