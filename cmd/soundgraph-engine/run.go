package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rxtd-audio/soundgraph/internal/confio"
	"github.com/rxtd-audio/soundgraph/internal/graph"
	"github.com/rxtd-audio/soundgraph/internal/imagesink"
	"github.com/rxtd-audio/soundgraph/internal/metrics"
)

// runOptions collects the "run" subcommand's flags, mirroring the shape
// of the teacher's cmd/file.Command's settings-by-reference flag wiring
// but without a shared global Settings singleton (internal/confio is
// stateless, so there is nothing to bind flags into but this struct).
type runOptions struct {
	configPath  string
	inputPath   string
	outputDir   string
	metricsAddr string
	tickTimeout time.Duration
}

// channelLayoutFor maps a decoded file's channel count to the fixed
// channel tags Engine.Update expects, in the conventional WAVE_FORMAT
// channel order (spec.md §3's Channel enum already names these).
func channelLayoutFor(n int) []graph.Channel {
	switch n {
	case 1:
		return []graph.Channel{graph.ChannelMono}
	case 2:
		return []graph.Channel{graph.ChannelLeft, graph.ChannelRight}
	default:
		all := []graph.Channel{
			graph.ChannelLeft, graph.ChannelRight, graph.ChannelCenter, graph.ChannelLFE,
			graph.ChannelBackLeft, graph.ChannelBackRight, graph.ChannelSideLeft, graph.ChannelSideRight,
		}
		if n > len(all) {
			n = len(all)
		}
		return all[:n]
	}
}

// runEngine decodes inputPath, drives one Engine through every block the
// source yields, and on EOF finalizes any image handler's accumulated
// strip into outputDir. It is the offline-file analogue of the plugin
// host's host_tick loop (spec.md §6): a real host calls Update once per
// audio callback instead of once per decoded block, but the engine side
// of that call is identical.
func runEngine(ctx context.Context, opts runOptions, logger *slog.Logger) error {
	tree, err := confio.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	source, closeSource, err := openAudioSource(opts.inputPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", opts.inputPath, err)
	}
	defer closeSource()

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	engine := graph.NewEngine()
	engine.SetMetrics(collector)

	sampleRate := source.SampleRate()
	if err := engine.Reload(tree, 1, sampleRate); err != nil {
		return fmt.Errorf("configuring engine: %w", err)
	}

	layout := channelLayoutFor(source.Channels())
	logger.Info("engine configured",
		"input", opts.inputPath, "sample_rate", sampleRate, "channels", len(layout))

	blocks := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("run cancelled", "blocks_processed", blocks)
			return ctx.Err()
		default:
		}

		frames, ok, err := source.Read()
		if err != nil {
			return fmt.Errorf("decoding %s: %w", opts.inputPath, err)
		}
		if !ok {
			break
		}

		deadline := time.Now().Add(opts.tickTimeout)
		if status := engine.Update(frames, layout, uint32(sampleRate), deadline); status != graph.StatusOk {
			logger.Warn("tick did not complete cleanly", "status", status.String())
		}
		blocks++
	}

	logger.Info("decode finished", "blocks_processed", blocks)
	return finishImages(engine, tree, layout, opts.outputDir, logger)
}

// finishImages walks every handler in every group/channel the config
// declares and, for the ones that produced an image (WaveForm,
// Spectrogram), encodes and writes it under outputDir via
// internal/imagesink -- the offline host's substitute for a live UI
// repainting from Engine.Finish on a timer (spec.md §6).
func finishImages(e *graph.Engine, tree graph.ConfigTree, layout []graph.Channel, outputDir string, logger *slog.Logger) error {
	if outputDir == "" {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	written := 0
	for _, groupName := range tree.GroupOrder {
		group, ok := tree.Groups[groupName]
		if !ok {
			continue
		}
		for _, channel := range layout {
			for _, handlerName := range group.HandlerOrder {
				img, ok := e.Finish(groupName, channel, handlerName)
				if !ok || img == nil || img.IsEmpty() {
					continue
				}
				path := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%s.bmp", groupName, channel, handlerName))
				pixels, width, height, ok := e.FinishPixels(groupName, channel, handlerName)
				var writeErr error
				if ok && len(pixels) > 0 {
					writeErr = imagesink.WritePixels(path, width, height, pixels)
				} else {
					writeErr = imagesink.Write(path, img)
				}
				if writeErr != nil {
					return fmt.Errorf("writing %s: %w", path, writeErr)
				}
				written++
			}
		}
	}
	logger.Info("images written", "count", written, "dir", outputDir)
	return nil
}
