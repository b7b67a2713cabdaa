package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"
)

// audioSource is the minimal surface run.go needs from a decoded file:
// a sample rate, a channel count, and repeated blocks of interleaved
// float32 samples normalized to [-1, 1]. wavSource and flacSource are
// the two concrete implementations; openAudioSource picks one by file
// extension the way the teacher's readAudioData (birdnet.go) commits to
// a single decoder rather than sniffing file content.
type audioSource interface {
	SampleRate() float64
	Channels() int
	Read() (samples []float32, ok bool, err error)
}

// openAudioSource opens path and returns a ready-to-read audioSource
// plus a closer the caller must defer.
func openAudioSource(path string) (audioSource, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		src, err := newWavSource(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return src, f.Close, nil
	case ".flac":
		src, err := newFlacSource(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return src, f.Close, nil
	default:
		f.Close()
		return nil, nil, fmt.Errorf("unsupported audio file extension %q (want .wav or .flac)", filepath.Ext(path))
	}
}

// wavSource reads a WAV file block by block via go-audio/wav, grounded
// on the teacher's readAudioData (birdnet.go): NewDecoder + ReadInfo +
// IsValidFile, then repeated PCMBuffer calls into a reused IntBuffer,
// normalized by the per-bit-depth divisor the teacher also hardcodes.
type wavSource struct {
	decoder *wav.Decoder
	buf     *audio.IntBuffer
	divisor float32
}

const wavReadBlockFrames = 4096

func newWavSource(r io.ReadSeeker) (*wavSource, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	var divisor float32
	switch d.BitDepth {
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return nil, fmt.Errorf("unsupported WAV bit depth %d", d.BitDepth)
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadBlockFrames*int(d.NumChans)),
		Format: &audio.Format{SampleRate: int(d.SampleRate), NumChannels: int(d.NumChans)},
	}
	return &wavSource{decoder: d, buf: buf, divisor: divisor}, nil
}

func (s *wavSource) SampleRate() float64 { return float64(s.decoder.SampleRate) }
func (s *wavSource) Channels() int       { return int(s.decoder.NumChans) }

func (s *wavSource) Read() ([]float32, bool, error) {
	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	out := make([]float32, n)
	for i, v := range s.buf.Data[:n] {
		out[i] = float32(v) / s.divisor
	}
	return out, true, nil
}

// flacSource decodes one frame at a time via tphakala/flac, yielding
// interleaved float32 samples normalized by the frame's own bit depth.
// Sample rate and channel count are only known once the first frame has
// been parsed, the same lazy-discovery shape mewkiz/flac-derived readers
// use since a FLAC stream's metadata blocks are optional.
type flacSource struct {
	stream     *flac.Stream
	sampleRate float64
	channels   int
}

func newFlacSource(r io.Reader) (*flacSource, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}
	return &flacSource{stream: stream}, nil
}

func (s *flacSource) SampleRate() float64 { return s.sampleRate }
func (s *flacSource) Channels() int       { return s.channels }

func (s *flacSource) Read() ([]float32, bool, error) {
	f, err := s.stream.ParseNext()
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	channels := len(f.Subframes)
	if s.sampleRate == 0 {
		s.sampleRate = float64(f.SampleRate)
		s.channels = channels
	}

	scale := float32(int64(1) << (f.BitsPerSample - 1))
	n := int(f.BlockSize)
	out := make([]float32, n*channels)
	for i := 0; i < n; i++ {
		for c, sub := range f.Subframes {
			out[i*channels+c] = float32(sub.Samples[i]) / scale
		}
	}
	return out, true, nil
}
