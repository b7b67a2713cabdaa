package dsp

// StripedImage accumulates a spectrogram/waveform image one vertical
// strip (column) at a time, ported from image-utils/StripedImage.h. Two
// storage modes are supported:
//
//   - stationary: a fixed-size ring buffer; new strips overwrite the
//     oldest column in place, and the image is always "full" width.
//   - non-stationary: a growing buffer that appends strips and only
//     reallocates (with 50% extra reserve) when it runs out of room,
//     the layout Spectrogram/WaveForm use while an image is being built
//     up to its configured width for the first time.
type StripedImage struct {
	width, height int
	background    IntColor
	stationary    bool

	pixels []IntColor // height * capacity, column-major per strip
	cap    int        // strips currently allocated
	used   int        // strips written so far (<= cap)
	head   int        // index of the oldest strip in stationary mode

	lastStripEmpty bool
	emptyRunLength int
}

// SetParams (re)initializes the image, discarding any existing content.
func (s *StripedImage) SetParams(width, height int, background IntColor, stationary bool) {
	s.width = width
	s.height = height
	s.background = background
	s.stationary = stationary
	s.head = 0
	s.used = 0
	s.lastStripEmpty = false
	s.emptyRunLength = 0

	if stationary {
		s.cap = width
		s.pixels = make([]IntColor, width*height)
		for i := range s.pixels {
			s.pixels[i] = background
		}
	} else {
		s.cap = 0
		s.pixels = nil
	}
}

// IsEmpty reports whether any strip has ever been pushed.
func (s *StripedImage) IsEmpty() bool {
	return s.used == 0
}

// PushStrip writes one column of height pixels into the image.
func (s *StripedImage) PushStrip(column []IntColor) {
	idx := s.incrementAndGetIndex()
	s.writeColumn(idx, column)
	s.lastStripEmpty = false
	s.emptyRunLength = 0
}

// PushEmptyStrip writes a full-background column, tracking how many
// consecutive empty strips have been pushed so callers (Spectrogram's
// silence handling) can skip redundant background fills.
func (s *StripedImage) PushEmptyStrip() {
	idx := s.incrementAndGetIndex()
	for row := 0; row < s.height; row++ {
		s.pixels[idx*s.height+row] = s.background
	}
	s.lastStripEmpty = true
	s.emptyRunLength++
}

// EmptyRunLength returns how many PushEmptyStrip calls have happened
// back to back since the last non-empty strip.
func (s *StripedImage) EmptyRunLength() int {
	return s.emptyRunLength
}

func (s *StripedImage) writeColumn(idx int, column []IntColor) {
	n := s.height
	if len(column) < n {
		n = len(column)
	}
	base := idx * s.height
	copy(s.pixels[base:base+n], column[:n])
	for row := n; row < s.height; row++ {
		s.pixels[base+row] = s.background
	}
}

func (s *StripedImage) incrementAndGetIndex() int {
	if s.stationary {
		return s.incrementStationary()
	}
	return s.incrementGrowing()
}

func (s *StripedImage) incrementStationary() int {
	idx := (s.head + s.used) % s.cap
	if s.used < s.cap {
		s.used++
	} else {
		s.head = (s.head + 1) % s.cap
	}
	return idx
}

// incrementGrowing appends a new strip, reallocating with a 50% reserve
// once capacity runs out so the common case (steadily filling toward
// `width`) doesn't reallocate every single push.
func (s *StripedImage) incrementGrowing() int {
	if s.used >= s.width && s.width > 0 {
		// once full, discard the oldest strip before placing the new one
		// (remove-first-then-allocate-next), matching the original's
		// switch from "growing" to a sliding window.
		s.removeFirst()
	}
	if s.used >= s.cap {
		newCap := s.cap + s.cap/2 + 1
		if newCap > s.width {
			newCap = s.width
		}
		if newCap <= s.cap {
			newCap = s.cap + 1
		}
		grown := make([]IntColor, newCap*s.height)
		copy(grown, s.pixels)
		for i := s.cap * s.height; i < len(grown); i++ {
			grown[i] = s.background
		}
		s.pixels = grown
		s.cap = newCap
	}
	idx := s.used
	s.used++
	return idx
}

func (s *StripedImage) removeFirst() {
	if s.used == 0 {
		return
	}
	copy(s.pixels, s.pixels[s.height:s.used*s.height])
	s.used--
}

// Width returns the number of strips currently stored.
func (s *StripedImage) Width() int { return s.used }

// Height returns the image's fixed row count.
func (s *StripedImage) Height() int { return s.height }

// Pixels returns a read-only view of pixels in display order (oldest
// strip first), copying out of the ring if necessary.
func (s *StripedImage) Pixels() []IntColor {
	if !s.stationary || s.head == 0 {
		return s.pixels[:s.used*s.height]
	}
	out := make([]IntColor, s.used*s.height)
	for i := 0; i < s.used; i++ {
		srcIdx := (s.head + i) % s.cap
		copy(out[i*s.height:(i+1)*s.height], s.pixels[srcIdx*s.height:(srcIdx+1)*s.height])
	}
	return out
}

// FadeHelper inflates a finished StripedImage with a decorative border
// and a fade-to-background gradient near the most recent strips,
// ported from image-utils/StripedImageFadeHelper.h.
type FadeHelper struct {
	Background IntColor
	Border     IntColor
	BorderSize int
	FadeWidth  int
}

// Inflate copies source's pixels into a new buffer, widened on both
// sides by BorderSize columns of Border color, and fades the last
// FadeWidth columns toward Background (drawBorderInPlace + inflate
// combined, since this engine always wants both together).
func (f FadeHelper) Inflate(source *StripedImage) []IntColor {
	w := source.Width()
	h := source.Height()
	totalW := w + 2*f.BorderSize
	out := make([]IntColor, totalW*h)
	for i := range out {
		out[i] = f.Border
	}

	src := source.Pixels()
	for col := 0; col < w; col++ {
		destCol := col + f.BorderSize
		copy(out[destCol*h:(destCol+1)*h], src[col*h:(col+1)*h])
	}

	if f.FadeWidth > 0 {
		for i := 0; i < f.FadeWidth && i < w; i++ {
			col := w - 1 - i
			destCol := col + f.BorderSize
			weight := float64(i) / float64(f.FadeWidth)
			for row := 0; row < h; row++ {
				idx := destCol*h + row
				out[idx] = out[idx].Mix(IntColor{
					B: f.Background.B, G: f.Background.G, R: f.Background.R,
					A: uint8(weight * 255),
				})
			}
		}
	}
	return out
}
