package pyth

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// updatesResponse is the body of the Hermes /v2/updates/price endpoints.
type updatesResponse struct {
	Parsed []PriceFeed `json:"parsed"`
}

// PriceFeed is one parsed feed entry as Hermes returns it over HTTP and WS.
type PriceFeed struct {
	ID       string   `json:"id"`
	Price    RawPrice `json:"price"`
	EMAPrice RawPrice `json:"ema_price"`
}

// RawPrice is an integer mantissa with a base-10 exponent.
type RawPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// streamMessage is a frame received from the Hermes WebSocket.
type streamMessage struct {
	Type      string    `json:"type"`
	PriceFeed PriceFeed `json:"price_feed"`
	Error     string    `json:"error,omitempty"`
}

// subscribeRequest asks Hermes to stream updates for ids.
type subscribeRequest struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

// Quote converts the feed into a domain quote: price = mantissa * 10^expo.
func (f PriceFeed) Quote() (domain.PriceQuote, error) {
	price, err := decimal.NewFromString(f.Price.Price)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("pyth: parse price %q: %w", f.Price.Price, err)
	}
	conf := decimal.Zero
	if f.Price.Conf != "" {
		conf, err = decimal.NewFromString(f.Price.Conf)
		if err != nil {
			return domain.PriceQuote{}, fmt.Errorf("pyth: parse conf %q: %w", f.Price.Conf, err)
		}
	}
	return domain.PriceQuote{
		Price:       price.Shift(f.Price.Expo).InexactFloat64(),
		Confidence:  conf.Shift(f.Price.Expo).InexactFloat64(),
		PublishTime: f.Price.PublishTime,
		PriceID:     f.ID,
	}, nil
}

// normalizeID lowercases a feed id and strips its 0x prefix; Hermes echoes
// ids without the prefix.
func normalizeID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}
