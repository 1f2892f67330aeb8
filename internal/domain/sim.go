package domain

// InvalidSimSlotIndex is reported by the platform when it cannot tell which
// physical slot a subscription lives in.
const InvalidSimSlotIndex = -1

// Subscription is the raw record the platform returns for an active SIM.
type Subscription struct {
	ID           int
	DisplayName  string
	CarrierName  string
	SimSlotIndex int
}

// SimCard is what callers see for each active subscription.
type SimCard struct {
	ID          int    `json:"id"`
	DisplayName string `json:"displayName"`
	CarrierName string `json:"carrierName"`
	SlotIndex   *int   `json:"slotIndex,omitempty"`
}

// NewSimCard projects a platform subscription into a SimCard.
func NewSimCard(s Subscription) SimCard {
	card := SimCard{
		ID:          s.ID,
		DisplayName: s.DisplayName,
		CarrierName: s.CarrierName,
	}
	if s.SimSlotIndex != InvalidSimSlotIndex {
		slot := s.SimSlotIndex
		card.SlotIndex = &slot
	}
	return card
}
