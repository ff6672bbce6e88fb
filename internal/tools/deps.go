// Package tools provides MCP tool handlers and registration.
package tools

import (
	"log/slog"

	"github.com/raphaelgruber/hygeia-go/internal/config"
	"github.com/raphaelgruber/hygeia-go/internal/service"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Session *service.Session
	Config  *config.Config
	Logger  *slog.Logger
}
