package node

import (
	"errors"
	"fmt"
)

// ChannelCount is the number of channels of a port.
type ChannelCount uint32

// Common channel counts.
const (
	Zero   ChannelCount = 0
	Mono   ChannelCount = 1
	Stereo ChannelCount = 2
	// MaxChannels is the maximum number of channels a node can have.
	MaxChannels ChannelCount = 64
)

// ErrInvalidChannels is returned when the channel config is not supported.
var ErrInvalidChannels = errors.New("invalid channel config")

// ChannelConfig defines the number of input and output channels of a node.
type ChannelConfig struct {
	NumInputs  ChannelCount
	NumOutputs ChannelCount
}

// Validate checks that the number of channels doesn't exceed the limit.
func (c ChannelConfig) Validate() error {
	if c.NumInputs > MaxChannels {
		return fmt.Errorf("%w: %d inputs, max %d", ErrInvalidChannels, c.NumInputs, MaxChannels)
	}
	if c.NumOutputs > MaxChannels {
		return fmt.Errorf("%w: %d outputs, max %d", ErrInvalidChannels, c.NumOutputs, MaxChannels)
	}
	return nil
}

func (c ChannelConfig) String() string {
	return fmt.Sprintf("%din/%dout", c.NumInputs, c.NumOutputs)
}

// SilenceMask has a bit set for every channel that is known to be silent.
type SilenceMask uint64

// AllSilent returns a mask where first n channels are silent.
func AllSilent(n int) SilenceMask {
	if n >= 64 {
		return ^SilenceMask(0)
	}
	return SilenceMask(1)<<uint(n) - 1
}

// IsSilent returns true if the channel is silent.
func (m SilenceMask) IsSilent(ch int) bool {
	return m&(1<<uint(ch)) != 0
}

// Set marks the channel silent.
func (m SilenceMask) Set(ch int) SilenceMask {
	return m | 1<<uint(ch)
}

// Clear marks the channel not silent.
func (m SilenceMask) Clear(ch int) SilenceMask {
	return m &^ (1 << uint(ch))
}

// AllSilent returns true if first n channels are silent.
func (m SilenceMask) AllSilent(n int) bool {
	all := AllSilent(n)
	return m&all == all
}
