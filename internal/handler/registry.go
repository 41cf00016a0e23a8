package handler

import "github.com/hudsor01/tenant-flow-sub014/internal/dispatch"

// NewRegistry binds every supported event type to its handler. The set
// is closed at startup; unlisted types are acknowledged and ignored by
// the worker.
func NewRegistry(payment *PaymentHandler, subscription *SubscriptionHandler) *dispatch.Registry {
	registry := dispatch.NewRegistry()
	registry.Register("payment.succeeded", payment)
	registry.Register("payment.failed", payment)
	registry.Register("payment.refunded", payment)
	registry.Register("subscription.activated", subscription)
	registry.Register("subscription.canceled", subscription)
	return registry
}
