package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rxtd-audio/soundgraph/internal/graph"
)

func TestChannelLayoutForCommonCounts(t *testing.T) {
	assert.Equal(t, []graph.Channel{graph.ChannelMono}, channelLayoutFor(1))
	assert.Equal(t, []graph.Channel{graph.ChannelLeft, graph.ChannelRight}, channelLayoutFor(2))

	six := channelLayoutFor(6)
	assert.Len(t, six, 6)
	assert.Equal(t, graph.ChannelLeft, six[0])
	assert.Equal(t, graph.ChannelRight, six[1])
}

func TestChannelLayoutForClampsToKnownChannels(t *testing.T) {
	layout := channelLayoutFor(99)
	assert.Len(t, layout, 8)
}
