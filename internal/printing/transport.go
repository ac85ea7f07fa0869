package printing

import (
	"context"

	"github.com/atolpos/atolpos/internal/printing/domain"
	"go.uber.org/zap"
)

// logTransport stands in for a physical ESC/POS sender. Dev and test
// environments print to the log and always succeed.
type logTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) domain.Transport {
	return &logTransport{log: log.Named("printing.transport")}
}

func (t *logTransport) Send(ctx context.Context, printer *domain.Printer, payload domain.ReceiptPayload) error {
	t.log.Info("receipt sent",
		zap.String("printer", printer.Name),
		zap.String("order_no", payload.OrderNo),
		zap.Int64("total_laari", payload.TotalLaari),
		zap.Int("items", len(payload.Items)))
	return nil
}
