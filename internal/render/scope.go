/*
Package render draws the live waveform and spectrum on a terminal screen.

A Scope owns two persistent plot lines. Their x positions are fixed when the
scope is created; each frame only replaces the y values and redraws. Input is
read by tcell on its own goroutine and queued; the queue is drained at the end
of every Present, so click handlers run on the caller's goroutine.
*/
package render

import (
	"fmt"
	"math"
	"sync"

	"github.com/gdamore/tcell/v2"
)

const (
	waveformMax = 255.0
	spectrumMax = 1.0
	minFreq     = 20.0 // Hz, left edge of the log frequency axis

	eventQueueSize = 64
)

var (
	waveformStyle = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	spectrumStyle = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	axisStyle     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	statusStyle   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorDarkGreen)
)

// line is one plot trace. x holds positions normalised to [0,1] (NaN when the
// point lies outside the axis); y is rewritten every frame.
type line struct {
	x    []float64
	y    []float64
	ymax float64
}

// Scope renders two stacked plots (waveform on top, spectrum below) and a
// status line on a tcell screen.
type Scope struct {
	screen  tcell.Screen
	onClick func()

	waveform line
	spectrum line
	freqs    []float64

	events chan tcell.Event
	quit   chan struct{}
	wg     sync.WaitGroup

	presents  uint64
	closeOnce sync.Once
}

// NewScope initialises screen, enables mouse input and creates the waveform
// line over samples (x range [0, 2×len(samples)]) and the spectrum line over
// freqs on a log axis from 20 Hz to half of the largest frequency. onClick is
// called from Present for every mouse button press.
func NewScope(screen tcell.Screen, samples, freqs []float64, onClick func()) (*Scope, error) {
	if len(samples) == 0 || len(samples) != len(freqs) {
		return nil, fmt.Errorf("render: axis lengths %d and %d must match and be non-zero", len(samples), len(freqs))
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("render: failed to initialise screen: %w", err)
	}
	screen.EnableMouse()
	screen.HideCursor()
	screen.Clear()

	s := &Scope{
		screen:  screen,
		onClick: onClick,
		waveform: line{
			x:    linearPositions(samples, 0, 2*float64(len(samples))),
			y:    make([]float64, len(samples)),
			ymax: waveformMax,
		},
		spectrum: line{
			x:    logPositions(freqs, minFreq, freqs[len(freqs)-1]/2),
			y:    make([]float64, len(freqs)),
			ymax: spectrumMax,
		},
		freqs:  freqs,
		events: make(chan tcell.Event, eventQueueSize),
		quit:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.pollEvents()
	return s, nil
}

func linearPositions(v []float64, lo, hi float64) []float64 {
	pos := make([]float64, len(v))
	for i, x := range v {
		pos[i] = (x - lo) / (hi - lo)
	}
	return pos
}

func logPositions(v []float64, lo, hi float64) []float64 {
	pos := make([]float64, len(v))
	llo, lhi := math.Log10(lo), math.Log10(hi)
	for i, f := range v {
		if f < lo || f > hi {
			pos[i] = math.NaN()
			continue
		}
		pos[i] = (math.Log10(f) - llo) / (lhi - llo)
	}
	return pos
}

// pollEvents forwards screen events until the screen is finalised.
func (s *Scope) pollEvents() {
	defer s.wg.Done()
	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case s.events <- ev:
		case <-s.quit:
			return
		}
	}
}

// Update replaces the y data of both lines. Lengths must match the axes.
func (s *Scope) Update(waveform []uint8, spectrum []float64) {
	if len(waveform) != len(s.waveform.y) || len(spectrum) != len(s.spectrum.y) {
		panic(fmt.Sprintf("render: got %d/%d points, want %d", len(waveform), len(spectrum), len(s.waveform.y)))
	}
	for i, v := range waveform {
		s.waveform.y[i] = float64(v)
	}
	copy(s.spectrum.y, spectrum)
}

// Present draws the current data, shows it and then handles queued input.
func (s *Scope) Present() {
	s.presents++
	s.screen.Clear()

	w, h := s.screen.Size()
	plotRows := h - 1
	top := plotRows / 2
	if w > 0 && top > 0 {
		for x := 0; x < w; x++ {
			s.screen.SetContent(x, top, '─', nil, axisStyle)
		}
		s.drawLine(&s.waveform, 0, top, w, waveformStyle)
		s.drawLine(&s.spectrum, top, plotRows-top, w, spectrumStyle)
	}
	if h > 0 {
		s.drawStatus(w, h-1)
	}

	s.screen.Show()
	s.drainEvents()
}

func (s *Scope) drawLine(l *line, row0, rows, w int, style tcell.Style) {
	if rows <= 0 {
		return
	}
	for i, px := range l.x {
		if math.IsNaN(px) || px < 0 || px > 1 {
			continue
		}
		py := l.y[i] / l.ymax
		if py < 0 {
			py = 0
		} else if py > 1 {
			py = 1
		}
		col := int(px * float64(w-1))
		row := row0 + rows - 1 - int(math.Round(py*float64(rows-1)))
		s.screen.SetContent(col, row, '•', nil, style)
	}
}

func (s *Scope) drawStatus(w, row int) {
	peak := 1
	for k := 2; k < len(s.spectrum.y); k++ {
		if s.spectrum.y[k] > s.spectrum.y[peak] {
			peak = k
		}
	}
	var text string
	if peak < len(s.freqs) {
		text = fmt.Sprintf(" frame %d  peak %.0f Hz  click to stop", s.presents, s.freqs[peak])
	} else {
		text = fmt.Sprintf(" frame %d  click to stop", s.presents)
	}
	for x := 0; x < w; x++ {
		r := ' '
		if x < len(text) {
			r = rune(text[x])
		}
		s.screen.SetContent(x, row, r, nil, statusStyle)
	}
}

func (s *Scope) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		default:
			return
		}
	}
}

func (s *Scope) handleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventMouse:
		if ev.Buttons()&(tcell.Button1|tcell.Button2|tcell.Button3) != 0 && s.onClick != nil {
			s.onClick()
		}
	case *tcell.EventResize:
		s.screen.Sync()
	}
}

// Close finalises the screen and stops the event goroutine.
func (s *Scope) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.screen.Fini()
		s.wg.Wait()
	})
}

// Headless satisfies the renderer contract without a display.
type Headless struct {
	presents uint64
}

// Update discards the frame.
func (h *Headless) Update(waveform []uint8, spectrum []float64) {}

// Present counts frames.
func (h *Headless) Present() { h.presents++ }

// Presents returns the number of Present calls.
func (h *Headless) Presents() uint64 { return h.presents }

// Close is a no-op.
func (h *Headless) Close() {}
