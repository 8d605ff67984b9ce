package cron

import (
	"context"
	"fmt"

	"github.com/perenalabs/perenapay-backend/pkg/logger"
)

// expirer is the slice of the payment lifecycle service the job needs.
type expirer interface {
	CleanupExpiredPayments(ctx context.Context) int64
}

// PaymentExpiryJobParams configure the expiry sweep job.
type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Payments expirer
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments expirer
}

// NewPaymentExpiryJob builds the job that sweeps overdue pending payments.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		payments: params.Payments,
	}, nil
}

func (j *paymentExpiryJob) Name() string { return "payment-expiry" }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	swept := j.payments.CleanupExpiredPayments(ctx)
	logCtx := j.logg.WithField(ctx, "rows_expired", swept)
	j.logg.Info(logCtx, "payment expiry sweep complete")
	return nil
}
