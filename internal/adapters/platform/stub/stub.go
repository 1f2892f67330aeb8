// Package stub is a platform with no telephony at all. It backs deployments
// where only the scaffold calls make sense.
package stub

import (
	"context"
	"fmt"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

type Platform struct{}

func New() *Platform { return &Platform{} }

func (*Platform) APILevel() int { return 0 }

func (*Platform) ActiveSubscriptions(context.Context) ([]domain.Subscription, error) {
	return nil, fmt.Errorf("subscription service: %w", domain.ErrUnsupported)
}

func (*Platform) Default(context.Context) (ports.SmsManager, error) {
	return nil, fmt.Errorf("sms manager: %w", domain.ErrUnsupported)
}

func (*Platform) CreateForSubscriptionID(context.Context, int) (ports.SmsManager, error) {
	return nil, fmt.Errorf("sms manager: %w", domain.ErrUnsupported)
}

func (*Platform) ForSubscriptionID(context.Context, int) (ports.SmsManager, error) {
	return nil, fmt.Errorf("sms manager: %w", domain.ErrUnsupported)
}

var _ ports.Platform = (*Platform)(nil)
