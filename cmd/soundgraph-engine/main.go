// Command soundgraph-engine is a small offline host for the engine in
// internal/graph: it decodes a WAV or FLAC file, drives the engine one
// block at a time the way a real plugin host drives it once per audio
// callback, and optionally writes out any accumulated waveform or
// spectrogram image and serves Prometheus metrics while it runs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
