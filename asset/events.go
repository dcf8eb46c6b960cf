package asset

import "time"

// Event types emitted by the asset. One event per completed state
// transition; rejected operations emit nothing.
const (
	EventDeposit             = "Deposit"
	EventWithdrawal          = "Withdrawal"
	EventSettlement          = "Settlement"
	EventPriceUpdate         = "PriceUpdate"
	EventPurchase            = "Purchase"
	EventForeclosure         = "Foreclosure"
	EventRelinquishment      = "Relinquishment"
	EventListing             = "Listing"
	EventAuctionStart        = "AuctionStart"
	EventAuctionBid          = "AuctionBid"
	EventAuctionExtension    = "AuctionExtension"
	EventAuctionFinalization = "AuctionFinalization"
	EventInvocation          = "Invocation"
	EventResponse            = "Response"
	EventResponseFlagging    = "ResponseFlagging"
	EventFeesUpdate          = "FeesUpdate"
	EventCooldownUpdate      = "CooldownUpdate"
	EventAuctionParamsUpdate = "AuctionParametersUpdate"
	EventCleartextLenUpdate  = "CleartextMaximumLengthUpdate"
	EventOathSwearing        = "OathSwearing"
)

// Event describes a completed state transition.
type Event struct {
	Type string         `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data,omitempty"`
}

// Recorder receives every event the asset emits. Implementations must
// not call back into the asset.
type Recorder interface {
	Record(Event)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(Event)

// Record implements Recorder.
func (f RecorderFunc) Record(e Event) { f(e) }

func (a *Asset) emit(now time.Time, eventType string, data map[string]any) {
	if a.recorder == nil {
		return
	}
	a.recorder.Record(Event{Type: eventType, At: now, Data: data})
}
