package probe

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// Result holds the container-level facts the layout code needs before the
// backend reports them: pixel dimensions, sample aspect ratio and duration.
type Result struct {
	Width      int
	Height     int
	SarNum     int
	SarDen     int
	DurationMs int64
	HasVideo   bool
}

// Sar returns the sample aspect ratio as a float, defaulting to 1 when the
// container carries none.
func (r Result) Sar() float64 {
	if r.SarNum <= 0 || r.SarDen <= 0 {
		return 1
	}
	return float64(r.SarNum) / float64(r.SarDen)
}

// Open inspects inputURL with FFmpeg and reports the best video stream's
// geometry. A stream without video yields HasVideo=false, not an error.
func Open(inputURL string) (Result, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return Result{}, errors.New("alloc format context")
	}
	defer fc.Free()

	dict := astiav.NewDictionary()
	defer dict.Free()
	_ = dict.Set("reconnect", "1", 0)
	_ = dict.Set("reconnect_streamed", "1", 0)

	if err := fc.OpenInput(inputURL, nil, dict); err != nil {
		return Result{}, fmt.Errorf("open input: %w", err)
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return Result{}, fmt.Errorf("find stream info: %w", err)
	}

	var out Result
	if d := fc.Duration(); d > 0 {
		out.DurationMs = d / 1000 // AV_TIME_BASE is microseconds
	}

	st, codec, err := fc.FindBestStream(astiav.MediaTypeVideo, -1, -1)
	if err != nil || st == nil || codec == nil {
		return out, nil
	}

	par := st.CodecParameters()
	out.HasVideo = true
	out.Width = par.Width()
	out.Height = par.Height()
	sar := par.SampleAspectRatio()
	out.SarNum = sar.Num()
	out.SarDen = sar.Den()
	return out, nil
}
