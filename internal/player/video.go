package player

import (
	"fmt"
	"math"
	"strings"

	"github.com/sonroyaalmerol/tubeplay/internal/queue"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
)

// ResizeMode selects how the video surface is fitted into its container.
// Each player instance carries its own mode.
type ResizeMode int

const (
	ResizeBestFit ResizeMode = iota
	ResizeFitScreen
	ResizeFill
	Resize16x9
	Resize4x3
	ResizeOriginal
)

func (m ResizeMode) String() string {
	switch m {
	case ResizeBestFit:
		return "best_fit"
	case ResizeFitScreen:
		return "fit_screen"
	case ResizeFill:
		return "fill"
	case Resize16x9:
		return "16:9"
	case Resize4x3:
		return "4:3"
	case ResizeOriginal:
		return "original"
	}
	return "unknown"
}

// Next cycles through the modes in display order.
func (m ResizeMode) Next() ResizeMode {
	if m >= ResizeOriginal {
		return ResizeBestFit
	}
	return m + 1
}

func ParseResizeMode(s string) (ResizeMode, error) {
	for m := ResizeBestFit; m <= ResizeOriginal; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown resize mode %q", s)
}

// Visibility is the per-stream-type control visibility matrix.
type Visibility struct {
	Surface   bool `json:"surface"`
	EndScreen bool `json:"end_screen"`
	LiveSync  bool `json:"live_sync"`
	EndTime   bool `json:"end_time"`
	Quality   bool `json:"quality"`
}

// VisibilityFor maps a stream type to its fixed set of visible regions. The
// quality control additionally needs video candidates to pick from.
func VisibilityFor(st queue.StreamType, hasVideoStreams bool) Visibility {
	switch st {
	case queue.StreamTypeAudio:
		return Visibility{EndScreen: true, EndTime: true}
	case queue.StreamTypeAudioLive:
		return Visibility{EndScreen: true, LiveSync: true}
	case queue.StreamTypeLive:
		return Visibility{Surface: true, LiveSync: true}
	default:
		return Visibility{Surface: true, EndTime: true, Quality: hasVideoStreams}
	}
}

// Geometry is a computed surface layout: the surface holds the full decoded
// picture, the frame is the visible window clipped to the container.
type Geometry struct {
	SurfaceWidth  int `json:"surface_width"`
	SurfaceHeight int `json:"surface_height"`
	FrameWidth    int `json:"frame_width"`
	FrameHeight   int `json:"frame_height"`
}

// ComputeGeometry fits a video of the given pixel and visible dimensions
// into containerW x containerH under the resize mode. The sample aspect
// ratio stretches the visible width when it is not square.
func ComputeGeometry(videoW, videoH, visibleW, visibleH, sarNum, sarDen int,
	containerW, containerH float64, mode ResizeMode) (Geometry, error) {

	if videoW*videoH == 0 {
		return Geometry{}, fmt.Errorf("invalid video dimensions %dx%d", videoW, videoH)
	}
	if containerW*containerH == 0 {
		return Geometry{}, fmt.Errorf("invalid container dimensions")
	}
	if visibleW <= 0 {
		visibleW = videoW
	}
	if visibleH <= 0 {
		visibleH = videoH
	}

	var vw, ar float64
	if sarDen == sarNum || sarNum <= 0 || sarDen <= 0 {
		vw = float64(visibleW)
	} else {
		vw = float64(visibleW) * float64(sarNum) / float64(sarDen)
	}
	ar = vw / float64(visibleH)

	dw, dh := containerW, containerH
	dar := dw / dh

	switch mode {
	case ResizeBestFit:
		if dar < ar {
			dh = dw / ar
		} else {
			dw = dh * ar
		}
	case ResizeFitScreen:
		if dar >= ar {
			dh = dw / ar
		} else {
			dw = dh * ar
		}
	case ResizeFill:
		// stretch to the container
	case Resize16x9:
		ar = 16.0 / 9.0
		if dar < ar {
			dh = dw / ar
		} else {
			dw = dh * ar
		}
	case Resize4x3:
		ar = 4.0 / 3.0
		if dar < ar {
			dh = dw / ar
		} else {
			dw = dh * ar
		}
	case ResizeOriginal:
		dw = vw
		dh = float64(visibleH)
	}

	return Geometry{
		SurfaceWidth:  int(math.Ceil(dw * float64(videoW) / float64(visibleW))),
		SurfaceHeight: int(math.Ceil(dh * float64(videoH) / float64(visibleH))),
		FrameWidth:    int(math.Floor(dw)),
		FrameHeight:   int(math.Floor(dh)),
	}, nil
}

// MenuEntry is one row of a selection menu.
type MenuEntry struct {
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// PlaybackSpeeds are the fixed speed menu steps.
var PlaybackSpeeds = []float64{0.5, 0.75, 1, 1.25, 1.5, 1.75, 2}

// QualityMenu builds the quality selection menu from the candidate list.
func QualityMenu(streams []resolver.VideoStream, selected int) []MenuEntry {
	out := make([]MenuEntry, 0, len(streams))
	for i, s := range streams {
		label := s.Resolution
		if s.Format != "" {
			label = s.Format + " " + s.Resolution
		}
		out = append(out, MenuEntry{Label: label, Selected: i == selected})
	}
	return out
}

// SpeedMenu marks the closest fixed step to the current speed.
func SpeedMenu(current float64) []MenuEntry {
	out := make([]MenuEntry, 0, len(PlaybackSpeeds))
	best, bestDiff := -1, math.MaxFloat64
	for i, s := range PlaybackSpeeds {
		if d := math.Abs(s - current); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	for i, s := range PlaybackSpeeds {
		out = append(out, MenuEntry{Label: fmt.Sprintf("%gx", s), Selected: i == best})
	}
	return out
}

// CaptionMenu lists the available subtitle languages behind a leading "none"
// entry, selecting the preferred language case-insensitively.
func CaptionMenu(subs []resolver.SubtitleTrack, preferred string) []MenuEntry {
	out := make([]MenuEntry, 0, len(subs)+1)
	selected := 0
	for i, s := range subs {
		if preferred != "" && strings.EqualFold(s.Language, preferred) {
			selected = i + 1
		}
	}
	out = append(out, MenuEntry{Label: "none", Selected: selected == 0})
	for i, s := range subs {
		out = append(out, MenuEntry{Label: s.Language, Selected: i+1 == selected})
	}
	return out
}

// PreferredSubtitle returns the URL of the caption track matching the
// preferred language, or empty when none does.
func PreferredSubtitle(subs []resolver.SubtitleTrack, preferred string) string {
	if preferred == "" {
		return ""
	}
	for _, s := range subs {
		if strings.EqualFold(s.Language, preferred) {
			return s.URL
		}
	}
	return ""
}
