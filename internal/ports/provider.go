package ports

import (
	"context"

	"sim-sms-bridge/internal/domain"
)

// APILevelScopedManagers is the first platform API level that creates
// subscription scoped SMS managers instead of looking them up.
const APILevelScopedManagers = 31

// Permission names a capability the embedding application must hold.
type Permission string

const (
	PermissionReadPhoneState Permission = "READ_PHONE_STATE"
	PermissionSendSMS        Permission = "SEND_SMS"
)

// PermissionChecker answers whether a permission has been granted.
type PermissionChecker interface {
	Granted(ctx context.Context, p Permission) bool
}

// SubscriptionService lists active SIM subscriptions. A nil slice with a nil
// error means the platform returned no list at all.
type SubscriptionService interface {
	ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
}

// CompletionSink receives send completion signals from a platform.
type CompletionSink interface {
	Deliver(ctx context.Context, c domain.Completion) error
}

// SentIntent tells the platform where to report the completion of one send.
type SentIntent struct {
	Token string
	Sink  CompletionSink
}

// Fire reports the completion for this intent.
func (i SentIntent) Fire(ctx context.Context, resultCode int) error {
	return i.Sink.Deliver(ctx, domain.Completion{Token: i.Token, ResultCode: resultCode})
}

// SmsManager is a sending handle, either the default one or one bound to a
// subscription.
type SmsManager interface {
	// SendTextMessage issues the send. A returned error means the send was
	// never issued and the intent will not fire; domain.ErrInvalidArgument
	// and domain.ErrUnsupported classify it.
	SendTextMessage(ctx context.Context, destination, text string, sent SentIntent) error
}

// SmsManagers resolves sending handles. Which subscription path is used
// depends on APILevel.
type SmsManagers interface {
	APILevel() int
	Default(ctx context.Context) (SmsManager, error)
	CreateForSubscriptionID(ctx context.Context, id int) (SmsManager, error)
	ForSubscriptionID(ctx context.Context, id int) (SmsManager, error)
}

// Platform is everything a telephony backend provides.
type Platform interface {
	SubscriptionService
	SmsManagers
}
