package resolver

import (
	"sort"
	"strconv"
	"strings"
)

// Selection is the outcome of the stream selection policy for one item: the
// URI handed to the backend plus the candidate list and chosen index that
// seed the quality menu.
type Selection struct {
	URI           string
	VideoStreams  []VideoStream
	SelectedIndex int
	Quality       string
}

// SortedVideoStreams returns the candidate renditions for the quality menu:
// one per resolution, streams with muxed audio preferred over video-only,
// highest resolution first.
func SortedVideoStreams(streams []VideoStream) []VideoStream {
	byRes := make(map[string]VideoStream, len(streams))
	for _, s := range streams {
		prev, ok := byRes[s.Resolution]
		if !ok || (prev.VideoOnly && !s.VideoOnly) {
			byRes[s.Resolution] = s
		}
	}
	out := make([]VideoStream, 0, len(byRes))
	for _, s := range byRes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height > out[j].Height })
	return out
}

// DefaultResolutionIndex picks the highest rendition not exceeding the
// target resolution, falling back to the lowest available. Returns -1 for an
// empty list.
func DefaultResolutionIndex(streams []VideoStream, target string) int {
	if len(streams) == 0 {
		return -1
	}
	limit := parseHeight(target)
	best := -1
	for i, s := range streams {
		if limit > 0 && s.Height > limit {
			continue
		}
		if best == -1 || s.Height > streams[best].Height {
			best = i
		}
	}
	if best >= 0 {
		return best
	}
	// everything exceeds the target; take the smallest
	best = 0
	for i, s := range streams {
		if s.Height < streams[best].Height {
			best = i
		}
	}
	return best
}

// ResolutionIndex finds the explicitly requested resolution, falling back to
// the default policy when absent.
func ResolutionIndex(streams []VideoStream, requested, defaultTarget string) int {
	for i, s := range streams {
		if strings.EqualFold(s.Resolution, requested) {
			return i
		}
	}
	return DefaultResolutionIndex(streams, defaultTarget)
}

// SelectPlayback applies the per-item policy: live items play their sole
// manifest, audio-only items their first audio rendition, and video items
// the requested quality or the default target.
func SelectPlayback(info *StreamInfo, requestedQuality, defaultTarget string) (Selection, error) {
	if info.StreamType.IsLive() {
		uri := info.HlsURL
		if uri == "" && len(info.VideoStreams) > 0 {
			uri = info.VideoStreams[0].URL
		}
		if uri == "" && len(info.AudioStreams) > 0 {
			uri = info.AudioStreams[0].URL
		}
		if uri == "" {
			return Selection{}, ErrNoStreams
		}
		return Selection{URI: uri, SelectedIndex: -1}, nil
	}

	if len(info.VideoStreams) == 0 {
		if len(info.AudioStreams) == 0 {
			return Selection{}, ErrNoStreams
		}
		return Selection{URI: info.AudioStreams[0].URL, SelectedIndex: -1}, nil
	}

	sorted := SortedVideoStreams(info.VideoStreams)
	idx := -1
	if requestedQuality != "" {
		idx = ResolutionIndex(sorted, requestedQuality, defaultTarget)
	} else {
		idx = DefaultResolutionIndex(sorted, defaultTarget)
	}
	if idx < 0 {
		return Selection{}, ErrNoStreams
	}
	return Selection{
		URI:           sorted[idx].URL,
		VideoStreams:  sorted,
		SelectedIndex: idx,
		Quality:       sorted[idx].Resolution,
	}, nil
}

func parseHeight(resolution string) int {
	h, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(resolution), "p"))
	if err != nil {
		return 0
	}
	return h
}
