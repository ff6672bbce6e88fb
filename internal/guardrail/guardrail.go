// Package guardrail clamps settings for resource-intensive analyses to safe
// bounds and recommends exploration limits for large networks.
//
// Normalization never fails. Every adjustment is reported as a Warning so the
// caller can decide whether to proceed.
package guardrail

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/hygeia-go/internal/models"
)

// Warning is a structured message describing one adjustment.
type Warning struct {
	Level   models.MessageLevel `json:"level"`
	Code    string              `json:"code"`
	Field   string              `json:"field,omitempty"`
	Message string              `json:"message"`
}

// AsMessage converts the warning into a document message.
func (w Warning) AsMessage() models.Message {
	return models.Message{Level: w.Level, Code: w.Code, Message: w.Message}
}

// Messages converts warnings into document messages.
func Messages(ws []Warning) []models.Message {
	out := make([]models.Message, len(ws))
	for i, w := range ws {
		out[i] = w.AsMessage()
	}
	return out
}

// IntLimit bounds one integer setting. A zero value means "unset" and
// resolves to Default.
type IntLimit struct {
	Min     int
	Default int
	Safe    int
	Hard    int
}

// clampInt applies the hard ceiling, then the safe ceiling unless unlocked.
// At most one warning is emitted for the field: HARD_CLAMPED when the input
// exceeded the hard ceiling, CLAMPED when it only exceeded the safe one.
func clampInt(prefix, field string, value int, lim IntLimit, unlocked bool) (int, *Warning) {
	if value == 0 {
		return lim.Default, nil
	}
	if value < lim.Min {
		return lim.Min, &Warning{
			Level:   models.MessageWarning,
			Code:    prefix + "_MIN_CLAMPED",
			Field:   field,
			Message: fmt.Sprintf("%s=%d is below the minimum; raised to %d.", field, value, lim.Min),
		}
	}

	out := value
	hard := false
	if out > lim.Hard {
		out = lim.Hard
		hard = true
	}
	if !unlocked && out > lim.Safe {
		out = lim.Safe
	}
	if out == value {
		return out, nil
	}

	if hard {
		return out, &Warning{
			Level: models.MessageWarning,
			Code:  prefix + "_HARD_CLAMPED",
			Field: field,
			Message: fmt.Sprintf("%s=%d exceeds the hard limit %d; clamped to %d.",
				field, value, lim.Hard, out),
		}
	}
	return out, &Warning{
		Level: models.MessageWarning,
		Code:  prefix + "_CLAMPED",
		Field: field,
		Message: fmt.Sprintf("%s=%d exceeds the safe limit %d; clamped to %d. Enable advanced unlock for larger runs.",
			field, value, lim.Safe, out),
	}
}

// clampUnit clamps a float to [0, 1].
func clampUnit(x float64) float64 {
	return min(max(x, 0), 1)
}

// RenderMarkdown renders warnings as a Markdown bullet list.
func RenderMarkdown(ws []Warning) string {
	if len(ws) == 0 {
		return ""
	}
	lines := make([]string, 0, len(ws))
	for _, w := range ws {
		icon := "ℹ️"
		if w.Level == models.MessageWarning || w.Level == models.MessageError {
			icon = "⚠️"
		}
		lines = append(lines, fmt.Sprintf("- %s **%s**: %s", icon, w.Code, w.Message))
	}
	return strings.Join(lines, "\n")
}
