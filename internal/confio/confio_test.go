package confio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
targetRate: 48000
unusedOptionsWarning: false
processing:
  - main
groups:
  main:
    channels: [Mono]
    filter: "highpass:80:0.707:1"
    handlers:
      - name: r
        type: BlockRms
        options:
          block-size: "50"
      - name: t
        type: SingleValueTransformer
        source: r
        options:
          source: r
          transform: db
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDecodesGroupsAndHandlersInOrder(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	tree, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 48000, tree.TargetRate)
	assert.False(t, tree.UnusedOptionsWarning)
	assert.Equal(t, []string{"main"}, tree.GroupOrder)

	g, ok := tree.Groups["main"]
	require.True(t, ok)
	assert.Equal(t, []string{"Mono"}, g.Channels)
	assert.Equal(t, "highpass:80:0.707:1", g.Filter)
	assert.Equal(t, []string{"r", "t"}, g.HandlerOrder)

	r := g.Handlers["r"]
	assert.Equal(t, "BlockRms", r.Type)
	assert.Equal(t, "50", r.Options["block-size"])

	tr := g.Handlers["t"]
	assert.Equal(t, "r", tr.Source)
}

func TestLoadDefaultsTargetRateAndWarningFlag(t *testing.T) {
	path := writeTemp(t, `
processing:
  - main
groups:
  main:
    channels: [Mono]
    handlers:
      - name: r
        type: BlockRms
        options:
          block-size: "50"
`)
	tree, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, tree.TargetRate)
	assert.True(t, tree.UnusedOptionsWarning)
}

func TestLoadRejectsUnknownProcessingGroupReference(t *testing.T) {
	path := writeTemp(t, `
processing:
  - ghost
groups: {}
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestCanonicalHandlerDescriptionIsOrderIndependent(t *testing.T) {
	a := handlerDoc{Type: "BlockRms", Options: map[string]string{"block-size": "50", "x": "1"}}
	b := handlerDoc{Type: "BlockRms", Options: map[string]string{"x": "1", "block-size": "50"}}
	assert.Equal(t, canonicalHandlerDescription(a), canonicalHandlerDescription(b))
}

func TestCanonicalHandlerDescriptionChangesWithOptions(t *testing.T) {
	a := handlerDoc{Type: "BlockRms", Options: map[string]string{"block-size": "50"}}
	b := handlerDoc{Type: "BlockRms", Options: map[string]string{"block-size": "100"}}
	assert.NotEqual(t, canonicalHandlerDescription(a), canonicalHandlerDescription(b))
}

func TestParseFloatList(t *testing.T) {
	vals, err := ParseFloatList("100, 1000,10000")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 1000, 10000}, vals)

	_, err = ParseFloatList("100,not-a-number")
	assert.Error(t, err)
}

func TestLoadResolvesFreqListIntoBandsOption(t *testing.T) {
	path := writeTemp(t, `
processing:
  - main
groups:
  main:
    channels: [Mono]
    freqLists:
      octaves: "20,40,80,160,320"
    handlers:
      - name: bands
        type: BandResampler
        options:
          source: fft
          freqList: octaves
`)
	tree, err := Load(path)
	require.NoError(t, err)

	h := tree.Groups["main"].Handlers["bands"]
	assert.Equal(t, "20,40,80,160,320", h.Options["bands"])
	assert.Equal(t, "20,40,80,160,320", h.Raw2)
}

func TestLoadRejectsMalformedFreqList(t *testing.T) {
	path := writeTemp(t, `
processing:
  - main
groups:
  main:
    channels: [Mono]
    freqLists:
      octaves: "20,not-a-number,80"
    handlers:
      - name: bands
        type: BandResampler
        options:
          source: fft
          freqList: octaves
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestReloadTwiceProducesIdenticalRawDescriptions(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	tree1, err := Load(path)
	require.NoError(t, err)
	tree2, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, tree1.Groups["main"].Handlers["r"].Raw, tree2.Groups["main"].Handlers["r"].Raw,
		"re-loading an unchanged document must produce a byte-identical raw description so the handler cache treats it as a no-op")
}
