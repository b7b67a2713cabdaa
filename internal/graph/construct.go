package graph

import (
	"log/slog"

	"github.com/rxtd-audio/soundgraph/internal/errs"
	"github.com/rxtd-audio/soundgraph/internal/handler"
)

// buildChannelGraph resolves one (group, channel) handler vector from
// cfg.HandlerOrder, implementing spec.md §4.5 end to end:
//  1. duplicate names abort the whole group (returned as an error, the
//     caller drops the group entirely);
//  2. each name is resolved through the HandlerCache (reparsed only if
//     its raw description changed);
//  3. a source naming an equal-or-later handler is
//     reverse_or_unknown_dependency and only that handler is skipped;
//  4. Configure runs in declaration order; a configure failure removes
//     that handler (and, transitively, anything that later tries to
//     source from it, since it's simply absent from the name table).
func buildChannelGraph(cache *HandlerCache, logger *slog.Logger, groupName string, cfg GroupConfig, channel string, sampleRate float64) ([]*handlerNode, error) {
	seen := make(map[string]bool, len(cfg.HandlerOrder))
	for _, name := range cfg.HandlerOrder {
		if seen[name] {
			return nil, errs.Newf("duplicate handler name %q", name).
				Component(groupName).
				Category(errs.CategoryInvalidOptions).
				Context("handler", name).
				Build()
		}
		seen[name] = true
	}

	ordinal := make(map[string]int, len(cfg.HandlerOrder))
	for i, name := range cfg.HandlerOrder {
		ordinal[name] = i
	}

	nodesByName := make(map[string]*handlerNode, len(cfg.HandlerOrder))
	order := make([]*handlerNode, 0, len(cfg.HandlerOrder))

	for i, name := range cfg.HandlerOrder {
		hc := cfg.Handlers[name]

		entry, changed, err := cache.resolve(groupName, hc)
		if err != nil {
			logInvalidation(logger, groupName, channel, name, "parse", err)
			continue
		}

		sourceName := hc.Source
		if sourceName == "" && len(entry.parsed.Sources) > 0 {
			sourceName = entry.parsed.Sources[0]
		}

		node := entry.instances[channel]
		if node == nil || changed {
			inst, ok := handler.New(entry.typeName)
			if !ok {
				continue // cache.resolve already validated the type; unreachable in practice
			}
			node = &handlerNode{name: name, typeName: entry.typeName, sourceName: sourceName}
			node.handler = inst
		}

		var sourceProvider handler.SourceProvider
		if sourceName != "" {
			srcOrdinal, known := ordinal[sourceName]
			sourceNode, built := nodesByName[sourceName]
			if !known || srcOrdinal >= i || !built {
				err := handler.NewInvalidSourceError(name, sourceName)
				logInvalidation(logger, groupName, channel, name, "link", err)
				if changed {
					delete(entry.instances, channel)
				}
				continue
			}
			if required, ok := node.handler.(handler.RequiredSource); ok {
				want := handler.CanonicalTypeName(required.RequiredSourceType())
				got := handler.CanonicalTypeName(sourceNode.typeName)
				if got != want {
					err := handler.NewInvalidSourceTypeError(name, sourceName, want, got)
					logInvalidation(logger, groupName, channel, name, "link", err)
					if changed {
						delete(entry.instances, channel)
					}
					continue
				}
			}
			sourceProvider = sourceNode.ring
		}

		dataSize, err := node.handler.Configure(entry.parsed.Params, sourceProvider, sampleRate)
		if err != nil {
			logInvalidation(logger, groupName, channel, name, "configure", err)
			delete(entry.instances, channel)
			continue
		}

		if node.ring == nil || !sameShape(node.dataSize, dataSize) {
			node.ring = handler.NewRing(dataSize, sampleRate, node.handler)
		}
		node.dataSize = dataSize
		node.sourceName = sourceName
		node.ok = true

		entry.instances[channel] = node
		nodesByName[name] = node
		order = append(order, node)
	}

	return order, nil
}

func sameShape(a, b handler.DataSize) bool {
	if a.LayersCount != b.LayersCount {
		return false
	}
	for i := 0; i < a.LayersCount; i++ {
		if a.ValuesCount[i] != b.ValuesCount[i] || a.EqWaveSizes[i] != b.EqWaveSizes[i] {
			return false
		}
	}
	return true
}

func logInvalidation(logger *slog.Logger, group, channel, handlerName, stage string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("handler invalidated",
		"group", group, "channel", channel, "handler", handlerName, "stage", stage, "error", err)
}
