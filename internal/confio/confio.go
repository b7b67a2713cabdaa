// Package confio turns a YAML configuration document into the
// graph.ConfigTree the engine consumes, the way the teacher's
// internal/conf package turns its config.yaml into a Settings struct via
// viper. Unlike that package this one is stateless and side-effect free:
// Load takes a path and returns a tree, it does not own a process-wide
// singleton or write defaults back to disk.
package confio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/rxtd-audio/soundgraph/internal/errs"
	"github.com/rxtd-audio/soundgraph/internal/graph"
)

type handlerDoc struct {
	Name    string            `mapstructure:"name"`
	Type    string            `mapstructure:"type"`
	Source  string            `mapstructure:"source"`
	Options map[string]string `mapstructure:"options"`
}

type groupDoc struct {
	Name        string            `mapstructure:"name"`
	Channels    []string          `mapstructure:"channels"`
	TargetRate  int               `mapstructure:"targetRate"`
	Granularity float64           `mapstructure:"granularity"`
	Filter      string            `mapstructure:"filter"`
	Handlers    []handlerDoc      `mapstructure:"handlers"`
	FreqLists   map[string]string `mapstructure:"freqLists"`
}

type rootDoc struct {
	TargetRate           int                 `mapstructure:"targetRate"`
	UnusedOptionsWarning bool                `mapstructure:"unusedOptionsWarning"`
	Processing           []string            `mapstructure:"processing"`
	Groups               map[string]groupDoc `mapstructure:"groups"`
}

// Load reads a YAML document at path and decodes it into a ConfigTree.
// Missing UnusedOptionsWarning defaults to true per spec.md §6's schema
// table; a missing TargetRate defaults to 44100.
func Load(path string) (graph.ConfigTree, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("targetRate", 44100)
	v.SetDefault("unusedOptionsWarning", true)

	if err := v.ReadInConfig(); err != nil {
		return graph.ConfigTree{}, errs.New(err).
			Category(errs.CategoryInvalidOptions).
			Context("path", path).
			Build()
	}

	var doc rootDoc
	if err := v.Unmarshal(&doc); err != nil {
		return graph.ConfigTree{}, errs.New(err).
			Category(errs.CategoryInvalidOptions).
			Context("path", path).
			Build()
	}

	return FromDoc(doc)
}

// FromDoc is the decode-independent half of Load, split out so tests can
// build a rootDoc by hand instead of writing a YAML fixture to disk.
func FromDoc(doc rootDoc) (graph.ConfigTree, error) {
	tree := graph.ConfigTree{
		TargetRate:           doc.TargetRate,
		UnusedOptionsWarning: doc.UnusedOptionsWarning,
		GroupOrder:           doc.Processing,
		Groups:               make(map[string]graph.GroupConfig, len(doc.Processing)),
	}

	for _, name := range doc.Processing {
		gd, ok := doc.Groups[name]
		if !ok {
			return graph.ConfigTree{}, errs.Newf("processing group %q has no matching entry under groups", name).
				Category(errs.CategoryInvalidOptions).Build()
		}

		gc := graph.GroupConfig{
			Name:        name,
			Channels:    gd.Channels,
			TargetRate:  gd.TargetRate,
			Granularity: gd.Granularity,
			Filter:      gd.Filter,
			Handlers:    make(map[string]graph.HandlerConfig, len(gd.Handlers)),
		}

		freqListRaw := canonicalMap(gd.FreqLists)

		for _, hd := range gd.Handlers {
			if hd.Name == "" {
				return graph.ConfigTree{}, errs.Newf("group %q has a handler with no name", name).
					Category(errs.CategoryInvalidOptions).Build()
			}
			gc.HandlerOrder = append(gc.HandlerOrder, hd.Name)

			raw := canonicalHandlerDescription(hd)
			raw2 := ""
			options := hd.Options
			if list, ok := hd.Options["freqList"]; ok {
				resolved := freqListRaw[list]
				if !strings.HasPrefix(resolved, "log:") && !strings.HasPrefix(resolved, "linear:") {
					if _, err := ParseFloatList(resolved); err != nil {
						return graph.ConfigTree{}, errs.New(err).
							Category(errs.CategoryInvalidOptions).
							Context("group", name).Context("handler", hd.Name).Context("freqList", list).
							Build()
					}
				}
				raw2 = resolved
				// The handler's "bands" option is the one BandResampler/
				// BandCascadeTransformer.Parse actually read; freqList is
				// only a name into the group's freqLists table, so resolve
				// it here rather than leaving the indirection for the
				// handler itself to chase.
				options = make(map[string]string, len(hd.Options))
				for k, v := range hd.Options {
					options[k] = v
				}
				options["bands"] = resolved
			}

			gc.Handlers[hd.Name] = graph.HandlerConfig{
				Name:    hd.Name,
				Type:    hd.Type,
				Source:  hd.Source,
				Options: options,
				Raw:     raw,
				Raw2:    raw2,
			}
		}

		tree.Groups[name] = gc
	}

	return tree, nil
}

// canonicalHandlerDescription builds the raw_description string the
// handler cache diffs against on reload (spec.md §3): every field that
// affects this handler's parsed behaviour, in a stable order, so two
// semantically-identical documents produce byte-identical strings
// regardless of map iteration order.
func canonicalHandlerDescription(hd handlerDoc) string {
	var b strings.Builder
	b.WriteString(hd.Type)
	b.WriteByte(';')
	b.WriteString(hd.Source)
	b.WriteByte(';')

	keys := make([]string, 0, len(hd.Options))
	for k := range hd.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(hd.Options[k])
		b.WriteByte(';')
	}
	return b.String()
}

func canonicalMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ParseFloatList splits a comma-separated FreqList-<N> descriptor into a
// float64 list. FromDoc uses it only to check that a plain list parses;
// the descriptor string itself is what it passes on, as the handler's
// "bands" option.
func ParseFloatList(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frequency %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}
