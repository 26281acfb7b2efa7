package domain

// Signal bus channels.
const (
	ChannelPrices = "price_updates"
	ChannelRounds = "rounds"
)

// RoundEventType names a lifecycle change published on ChannelRounds.
type RoundEventType string

const (
	RoundEventStarted RoundEventType = "round_started"
	RoundEventSettled RoundEventType = "round_settled"
	RoundEventClaimed RoundEventType = "claim_relayed"
)

// RoundEvent is the payload published on ChannelRounds.
type RoundEvent struct {
	Type       RoundEventType `json:"type"`
	RoundID    uint64         `json:"roundId"`
	TxHash     string         `json:"txHash,omitempty"`
	StartPrice float64        `json:"startPrice,omitempty"`
	EndPrice   float64        `json:"endPrice,omitempty"`
	ExpiryTime int64          `json:"expiryTime,omitempty"`
	Outcome    Side           `json:"outcome,omitempty"`
	User       string         `json:"user,omitempty"`
	Payout     uint64         `json:"payout,omitempty"`
}
