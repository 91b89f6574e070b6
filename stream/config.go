package stream

import "time"

// OnFullPolicy decides what happens when the outbound event channel has no
// free capacity.
type OnFullPolicy int

const (
	// Block waits for room, naturally backpressuring the socket reader.
	Block OnFullPolicy = iota
	// DropOldest discards the channel's oldest buffered event to make room.
	DropOldest
	// DropNewest discards the event that just failed to enqueue.
	DropNewest
)

// Config tunes one ExchangeStream's reconnect, buffering and backpressure
// behavior. Zero value is not valid; use DefaultConfig as a base.
type Config struct {
	ReconnectBaseMS    int
	ReconnectCapMS     int
	ChannelCapacity    int
	OnFull             OnFullPolicy
	LivenessTimeoutMS  int
	SubscribeBufferCap int // bounded buffer for data frames arriving during Subscribing
}

// DefaultConfig matches spec §4.3/§6's stated defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseMS:    1000,
		ReconnectCapMS:     30000,
		ChannelCapacity:    256,
		OnFull:             Block,
		LivenessTimeoutMS:  60000,
		SubscribeBufferCap: 256,
	}
}

func (c Config) livenessTimeout() time.Duration {
	return time.Duration(c.LivenessTimeoutMS) * time.Millisecond
}
