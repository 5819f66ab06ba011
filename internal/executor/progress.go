package executor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/randomparity/vpo/internal/domain"
)

// Progress is one parsed ffmpeg status line
// (frame= N fps= F ... time=hh:mm:ss.cc bitrate=...kbits/s speed=...x).
type Progress struct {
	Frame       int64
	FPS         float64
	TimeSeconds float64
	BitrateKbps float64
	Speed       float64
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	timeRe    = regexp.MustCompile(`time=\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+)\s*kbits/s`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// ParseProgressLine matches one stderr line against the ffmpeg status
// format. Returns nil for lines that are not status lines.
func ParseProgressLine(line string) *Progress {
	if !strings.Contains(line, "frame=") && !strings.Contains(line, "time=") {
		return nil
	}

	p := &Progress{}
	matched := false

	if m := frameRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			p.Frame = v
			matched = true
		}
	}
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.FPS = v
			matched = true
		}
	}
	if m := timeRe.FindStringSubmatch(line); m != nil {
		hours, _ := strconv.ParseFloat(m[1], 64)
		minutes, _ := strconv.ParseFloat(m[2], 64)
		seconds, _ := strconv.ParseFloat(m[3], 64)
		p.TimeSeconds = hours*3600 + minutes*60 + seconds
		matched = true
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.BitrateKbps = v
		}
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.Speed = v
		}
	}

	if !matched {
		return nil
	}
	return p
}

// MetricsAggregator folds progress samples into the summary recorded on
// the processing-stats row.
type MetricsAggregator struct {
	samples     int
	fpsSum      float64
	fpsPeak     float64
	bitrateSum  float64
	bitrateN    int
	totalFrames int64
}

func (m *MetricsAggregator) Add(p Progress) {
	m.samples++
	if p.FPS > 0 {
		m.fpsSum += p.FPS
		if p.FPS > m.fpsPeak {
			m.fpsPeak = p.FPS
		}
	}
	if p.BitrateKbps > 0 {
		m.bitrateSum += p.BitrateKbps
		m.bitrateN++
	}
	if p.Frame > m.totalFrames {
		m.totalFrames = p.Frame
	}
}

// Summarize fills the metric fields of a stats row.
func (m *MetricsAggregator) Summarize(stats *domain.ProcessingStats) {
	if m.samples > 0 {
		stats.MeanFPS = m.fpsSum / float64(m.samples)
		stats.PeakFPS = m.fpsPeak
	}
	if m.bitrateN > 0 {
		stats.MeanBitrateKbps = m.bitrateSum / float64(m.bitrateN)
	}
	stats.TotalFrames = m.totalFrames
}
