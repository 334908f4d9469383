package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"textile-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimWidget is a stand-in for the third-party payment-capture widget: it
// confirms most captures after a short delay and declines the rest, which is
// enough to exercise the settlement path end to end.
type SimWidget struct {
	successRate float64
	logger      *zap.Logger
}

func NewSimWidget() *SimWidget {
	return &SimWidget{
		successRate: 0.9,
		logger:      util.GetLogger(),
	}
}

func (w *SimWidget) Capture(ctx context.Context, amount float64, metadata map[string]string) (string, error) {
	select {
	case <-time.After(time.Duration(100+rand.Intn(400)) * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if rand.Float64() >= w.successRate {
		w.logger.Warn("Payment capture declined", zap.Float64("amount", amount))
		return "", fmt.Errorf("payment declined by provider")
	}

	ref := fmt.Sprintf("PAY-%s", uuid.New().String()[:8])
	w.logger.Info("Payment captured",
		zap.Float64("amount", amount),
		zap.String("payment_ref", ref))
	return ref, nil
}
