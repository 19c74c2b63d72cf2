package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"adledger/internal/model"
)

// NatsNotifier publishes billing events to NATS topics
// ("billing.notify.<event>"). Delivery is best-effort: a failed publish is
// the caller's to log, never to act on.
type NatsNotifier struct {
	nc *nats.Conn
}

func NewNatsNotifier(nc *nats.Conn) *NatsNotifier {
	return &NatsNotifier{nc: nc}
}

func (n *NatsNotifier) Notify(ctx context.Context, accountID, event string, payload map[string]any) error {
	msg := map[string]any{
		"account_id": accountID,
		"event":      event,
		"emitted_at": time.Now().UTC(),
	}
	for k, v := range payload {
		msg[k] = v
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.nc.Publish("billing.notify."+event, data)
}

// NatsUsageReporter reports settled consumption for invoicing/metering on
// the "billing.usage" topic. Fire-and-forget; the credit ledger is separate.
type NatsUsageReporter struct {
	nc *nats.Conn
}

func NewNatsUsageReporter(nc *nats.Conn) *NatsUsageReporter {
	return &NatsUsageReporter{nc: nc}
}

func (r *NatsUsageReporter) Report(ctx context.Context, accountID string, amount model.Money, businessDate string) error {
	data, err := json.Marshal(map[string]any{
		"account_id":    accountID,
		"amount_cents":  amount.Cents(),
		"business_date": businessDate,
		"reported_at":   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.nc.Publish("billing.usage", data)
}
