package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/handiism/bandcamp-verificator/internal/model"
)

// ProgressFunc is called after each attempted code with the number of
// codes done so far, the batch size and that code's result.
type ProgressFunc func(done, total int, res model.VerificationResult)

// VerifyBatch verifies codes strictly in order.
//
// Before each code it consults shouldStop and ctx; if either signals, the
// results gathered so far are returned. Both hooks may be nil.
//
// Example:
//
//	var stop atomic.Bool
//	results := engine.VerifyBatch(ctx, codes, func(done, total int, r model.VerificationResult) {
//	    fmt.Printf("[%d/%d] %s %v\n", done, total, r.Code, r.Success)
//	}, stop.Load)
func (e *Engine) VerifyBatch(ctx context.Context, codes []string, onProgress ProgressFunc, shouldStop func() bool) []model.VerificationResult {
	total := len(codes)
	e.logger.Info("batch verification started", zap.Int("requested", total))

	results := make([]model.VerificationResult, 0, total)
	for i, code := range codes {
		if (shouldStop != nil && shouldStop()) || ctx.Err() != nil {
			e.logger.Info("batch verification stopped", zap.Int("next_index", i+1))
			break
		}

		res := e.VerifyCode(ctx, code, i+1, total)
		results = append(results, res)
		if onProgress != nil {
			onProgress(len(results), total, res)
		}
	}

	success, failed := model.Summary(results)
	e.logger.Info("batch verification completed",
		zap.Int("processed", len(results)),
		zap.Int("requested", total),
		zap.Int("success", success),
		zap.Int("failed", failed))
	return results
}
