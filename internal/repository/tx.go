package repository

import (
	"context"

	"github.com/jtoloui/motorway-takehome-backend/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/jtoloui/motorway-takehome-backend/internal/repository")

// txHandle is a driver transaction that also serves the Tx reads.
type txHandle interface {
	Tx
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// txRunner implements the begin/commit/rollback lifecycle shared by every
// driver, including its logging, metrics and span events.
type txRunner struct {
	driver   string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	classify func(op string, err error) error
}

func (r txRunner) run(
	ctx context.Context,
	begin func(ctx context.Context) (txHandle, error),
	fn func(ctx context.Context, tx Tx) error,
) (err error) {
	ctx, span := tracer.Start(ctx, "store.transaction",
		trace.WithAttributes(attribute.String("db.system", r.driver)))
	defer span.End()

	tx, err := begin(ctx)
	if err != nil {
		err = r.classify("begin transaction", err)
		r.metrics.ObserveTransaction(r.driver, "begin_error")
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return err
	}
	r.logger.Debug("Transaction begin")
	span.AddEvent("begin")

	committed := false
	defer func() {
		if committed {
			return
		}
		// The request context may already be cancelled; the rollback must
		// still run so the connection goes back to the pool clean.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			r.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
		}
		r.metrics.ObserveTransaction(r.driver, "rollback")
		r.logger.Debug("Transaction rolled back", zap.Error(err))
		span.AddEvent("rollback")
	}()

	if err = fn(ctx, tx); err != nil {
		span.RecordError(err)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		err = r.classify("commit transaction", err)
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return err
	}

	committed = true
	r.metrics.ObserveTransaction(r.driver, "commit")
	r.logger.Debug("Transaction committed")
	span.AddEvent("commit")
	return nil
}
