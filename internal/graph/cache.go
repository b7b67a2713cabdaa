package graph

import (
	"log/slog"
	"sync"

	"github.com/rxtd-audio/soundgraph/internal/handler"
	"github.com/rxtd-audio/soundgraph/internal/logging"
)

// handlerCacheEntry is the per (group, handler-name) cached parse result
// plus one live instance per channel, mirroring spec.md §3's "Cached
// handler info": raw/raw2 are compared verbatim on reload; a miss
// reparses and drops every channel's instance (state loss is expected --
// the params changed), a hit reuses the parsed params and leaves
// existing instances untouched so their filter/IRF memory survives.
type handlerCacheEntry struct {
	typeName string
	raw      string
	raw2     string
	parsed   handler.ParseResult

	// instances is keyed by channel name. An instance is replaced only
	// when the entry is reparsed; a reconfigure that changes a node's
	// DataSize gives it a new output ring but keeps the handler instance
	// (see construct.go).
	instances map[string]*handlerNode
}

// handlerNode is one compiled node: the handler instance, its output
// ring (nil for handlers with no meaningful downstream output shape yet,
// i.e. before first successful Configure), and the bookkeeping
// construct.go needs to validate and wire the DAG.
type handlerNode struct {
	name       string
	typeName   string
	sourceName string
	handler    handler.Handler
	ring       *handler.Ring
	dataSize   handler.DataSize
	ok         bool // false once Configure has failed; node is inert
}

// HandlerCache is per engine instance, keyed by (group name, handler
// name) so identically-named handlers in different groups never
// collide. It is mutated only during Reload (spec.md §5's "Shared
// resources" note).
type HandlerCache struct {
	mu      sync.Mutex
	entries map[string]map[string]*handlerCacheEntry
	logger  *slog.Logger
}

// NewHandlerCache creates an empty cache.
func NewHandlerCache() *HandlerCache {
	return &HandlerCache{
		entries: make(map[string]map[string]*handlerCacheEntry),
		logger:  logging.ForService("graph"),
	}
}

// resolve returns the cache entry for (groupName, cfg.Name), reparsing
// via the handler's own Parse when either raw description changed (or
// the entry doesn't exist, or the handler type changed). changed is true
// when the entry was freshly parsed -- callers must discard any existing
// per-channel instances in that case, since the parsed params (and
// therefore the kernel's behaviour) are no longer the ones those
// instances were configured with.
func (c *HandlerCache) resolve(groupName string, cfg HandlerConfig) (*handlerCacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	group, ok := c.entries[groupName]
	if !ok {
		group = make(map[string]*handlerCacheEntry)
		c.entries[groupName] = group
	}

	entry, exists := group[cfg.Name]
	if exists && entry.typeName == cfg.Type && entry.raw == cfg.Raw && entry.raw2 == cfg.Raw2 {
		return entry, false, nil
	}

	h, ok := handler.New(cfg.Type)
	if !ok {
		return nil, false, handler.NewInvalidOptionsError(cfg.Name, "unknown handler type "+cfg.Type)
	}
	parsed, err := h.Parse(handler.NewConfigNode(cfg.Options))
	if err != nil {
		return nil, false, err
	}

	entry = &handlerCacheEntry{
		typeName:  cfg.Type,
		raw:       cfg.Raw,
		raw2:      cfg.Raw2,
		parsed:    parsed,
		instances: make(map[string]*handlerNode),
	}
	group[cfg.Name] = entry
	if c.logger != nil {
		c.logger.Debug("handler reparsed", "group", groupName, "handler", cfg.Name, "type", cfg.Type)
	}
	return entry, true, nil
}

// dropGroup removes every cached entry for a group, used when a group
// fails to parse at all (spec.md §7: "Parse errors in a group's channels
// or handlers list invalidate the group").
func (c *HandlerCache) dropGroup(groupName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, groupName)
}

// prune removes cache entries for groups/handlers no longer present in
// the latest config, so a renamed or deleted handler's state doesn't
// linger forever.
func (c *HandlerCache) prune(liveGroups map[string]map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for groupName, group := range c.entries {
		liveHandlers, groupLive := liveGroups[groupName]
		if !groupLive {
			delete(c.entries, groupName)
			continue
		}
		for handlerName := range group {
			if !liveHandlers[handlerName] {
				delete(group, handlerName)
			}
		}
	}
}
