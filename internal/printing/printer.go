package printing

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/tillq/pkg/enums"
	"github.com/angelmondragon/tillq/pkg/logger"
)

// LogPrinter stands in for a hardware driver by logging each ticket.
type LogPrinter struct {
	logg *logger.Logger
}

func NewLogPrinter(logg *logger.Logger) *LogPrinter {
	return &LogPrinter{logg: logg}
}

func (p *LogPrinter) Print(ctx context.Context, printType enums.PrintType, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"print_type":    printType,
		"payload_bytes": len(payload),
	}), "ticket printed")
	return nil
}
