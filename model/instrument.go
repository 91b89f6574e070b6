// Package model holds the normalized value types shared by every exchange
// connector and transformer: instruments, subscriptions, and the market
// event envelope delivered to consumers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// InstrumentKind distinguishes the tradeable product shape of an Instrument.
type InstrumentKind int

const (
	Spot InstrumentKind = iota
	FuturePerpetual
	FutureDated
	Option
)

func (k InstrumentKind) String() string {
	switch k {
	case Spot:
		return "spot"
	case FuturePerpetual:
		return "future_perpetual"
	case FutureDated:
		return "future_dated"
	case Option:
		return "option"
	default:
		return "unknown"
	}
}

// OptionKind distinguishes calls from puts for Option instruments.
type OptionKind int

const (
	Call OptionKind = iota
	Put
)

// Instrument identifies a tradeable product by base/quote asset and kind.
// Assets are compared case-insensitively but stored exactly as constructed.
// Instrument is immutable once built via NewInstrument.
type Instrument struct {
	Base   string
	Quote  string
	Kind   InstrumentKind
	Expiry time.Time  // set for FutureDated and Option
	Strike float64    // set for Option
	Option OptionKind // set for Option
}

// NewInstrument builds a Spot/FuturePerpetual instrument. Use
// NewDatedFuture/NewOption for the expiry-bearing kinds.
func NewInstrument(base, quote string, kind InstrumentKind) Instrument {
	return Instrument{Base: base, Quote: quote, Kind: kind}
}

// NewDatedFuture builds a FutureDated instrument with the given expiry.
func NewDatedFuture(base, quote string, expiry time.Time) Instrument {
	return Instrument{Base: base, Quote: quote, Kind: FutureDated, Expiry: expiry}
}

// NewOption builds an Option instrument.
func NewOption(base, quote string, strike float64, expiry time.Time, kind OptionKind) Instrument {
	return Instrument{Base: base, Quote: quote, Kind: Option, Strike: strike, Expiry: expiry, Option: kind}
}

// Equal reports structural equality, comparing assets case-insensitively.
func (i Instrument) Equal(o Instrument) bool {
	if !strings.EqualFold(i.Base, o.Base) || !strings.EqualFold(i.Quote, o.Quote) {
		return false
	}
	if i.Kind != o.Kind {
		return false
	}
	switch i.Kind {
	case FutureDated:
		return i.Expiry.Equal(o.Expiry)
	case Option:
		return i.Expiry.Equal(o.Expiry) && i.Strike == o.Strike && i.Option == o.Option
	default:
		return true
	}
}

// Canonical returns the instrument with base/quote upper-cased, matching the
// on-the-wire-in, canonical-out rule: the exchange's own symbol spelling
// still lives in the SubscriptionID, never in the Instrument exposed to
// consumers.
func (i Instrument) Canonical() Instrument {
	out := i
	out.Base = strings.ToUpper(i.Base)
	out.Quote = strings.ToUpper(i.Quote)
	return out
}

func (i Instrument) String() string {
	switch i.Kind {
	case FutureDated:
		return fmt.Sprintf("%s%s-%s-%s", i.Base, i.Quote, i.Kind, i.Expiry.Format("060102"))
	case Option:
		return fmt.Sprintf("%s%s-%s-%g-%s", i.Base, i.Quote, i.Kind, i.Strike, i.Expiry.Format("060102"))
	default:
		return fmt.Sprintf("%s%s-%s", i.Base, i.Quote, i.Kind)
	}
}
