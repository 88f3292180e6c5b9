package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wormhole-demo/corebridge/internal/clients"
	"github.com/wormhole-demo/corebridge/internal/config"
	"github.com/wormhole-demo/corebridge/internal/governance"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

func TestSpyFilters(t *testing.T) {
	gov := governance.DefaultAuthority
	emitter := vaa.Address{31: 0xaa}

	t.Run("governance emitter always subscribed", func(t *testing.T) {
		cfg := &config.Config{Governance: gov, SourceChains: []vaa.ChainID{vaa.ChainIDEthereum, vaa.ChainIDBSC}}
		assert.Equal(t, []clients.EmitterFilter{
			{Chain: gov.Chain, Emitter: gov.Emitter},
			{Chain: vaa.ChainIDEthereum, Emitter: emitter},
			{Chain: vaa.ChainIDBSC, Emitter: emitter},
		}, spyFilters(cfg, emitter))
	})

	t.Run("no duplicate when the emitter is the authority", func(t *testing.T) {
		cfg := &config.Config{Governance: gov, SourceChains: []vaa.ChainID{gov.Chain}}
		assert.Equal(t, []clients.EmitterFilter{{Chain: gov.Chain, Emitter: gov.Emitter}}, spyFilters(cfg, gov.Emitter))
	})

	t.Run("unfiltered without source chains", func(t *testing.T) {
		assert.Nil(t, spyFilters(&config.Config{Governance: gov}, emitter))
	})
}
