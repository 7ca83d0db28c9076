package handler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaurosa/storefront/internal/domain/promotion"
)

type metrics struct {
	evaluations metric.Int64Counter
	discounted  metric.Float64Counter
	orders      metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.evaluations, err = meter.Int64Counter("storefront.promotions.evaluations",
		metric.WithDescription("Cart evaluations by outcome."),
	); err != nil {
		return nil, err
	}
	if m.discounted, err = meter.Float64Counter("storefront.promotions.discount",
		metric.WithUnit("EUR"),
		metric.WithDescription("Discount granted by cart evaluations."),
	); err != nil {
		return nil, err
	}
	if m.orders, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders placed."),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) evaluated(ctx context.Context, res promotion.Result) {
	coupon := "none"
	if res.CouponValid != nil {
		coupon = "invalid"
		if *res.CouponValid {
			coupon = "valid"
		}
	}
	attrs := metric.WithAttributes(
		attribute.Bool("discounted", res.Discount.IsPositive()),
		attribute.String("coupon", coupon),
		attribute.Bool("bundle", res.Bundle != nil && res.Bundle.GroupsActive > 0),
	)
	m.evaluations.Add(ctx, 1, attrs)
	m.discounted.Add(ctx, res.Discount.InexactFloat64())
}

func (m *metrics) placed(ctx context.Context, coupon bool) {
	m.orders.Add(ctx, 1, metric.WithAttributes(attribute.Bool("coupon", coupon)))
}
