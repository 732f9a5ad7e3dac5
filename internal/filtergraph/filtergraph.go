// Package filtergraph builds the ffmpeg filter_complex expression for a
// mixed recording's tiled video and summed audio. Build is a pure
// function of input counts and target frame size so its output is
// snapshot-testable without spawning ffmpeg.
package filtergraph

import (
	"fmt"
	"strings"
)

// MaxVideoInputs is the hard cap on tiled video inputs; callers select
// at most this many producers before calling Build.
const MaxVideoInputs = 4

// TargetFPS is the framerate every video stream is normalized to before
// stacking, and the GOP length used by the output encoder (one keyframe
// per second).
const TargetFPS = 30

// cell describes one grid cell's top-left offset in the output frame,
// used as the x/y of the overlay that places that input on the canvas.
type cell struct {
	x, y int
}

// grid returns the cell width/height and the cells' top-left offsets for
// V video inputs tiled into a W×H frame. Cells are filled in row-major
// order; when V=3 the fourth cell is left black.
func grid(v, w, h int) (cellW, cellH int, cells []cell) {
	switch v {
	case 1:
		return w, h, []cell{{0, 0}}
	case 2:
		cw := w / 2
		return cw, h, []cell{{0, 0}, {cw, 0}}
	case 3:
		cw, ch := w/2, h/2
		return cw, ch, []cell{{0, 0}, {cw, 0}, {0, ch}}
	default: // 4
		cw, ch := w/2, h/2
		return cw, ch, []cell{{0, 0}, {cw, 0}, {0, ch}, {cw, ch}}
	}
}

// Build returns the filter_complex expression, the output video stream
// label and the output audio stream label for v video inputs and a audio
// inputs tiled/mixed into a w×h frame. Input labels in the generated
// expression are "[0:v]".."[v-1:v]" for video and "[v:a]".."[v+a-1:a]"
// for audio, matching ffmpeg's input-index convention when each SDP is
// given as a separate -i argument in that order. v=0 returns an empty
// video label (mixed recordings with no video input still produce
// audio-only output); callers with v=0 and a=0 have no inputs at all and
// must not call Build (that precondition is enforced by the caller, not
// here).
func Build(v, a, w, h int) (expr, videoLabel, audioLabel string) {
	if v > MaxVideoInputs {
		v = MaxVideoInputs
	}

	var parts []string
	videoLabel = ""
	if v > 0 {
		cellW, cellH, cells := grid(v, w, h)
		normalized := make([]string, v)
		for i := 0; i < v; i++ {
			label := fmt.Sprintf("v%d", i)
			normalized[i] = label
			parts = append(parts, fmt.Sprintf(
				"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,fps=%d,format=yuv420p,setsar=1[%s]",
				i, cellW, cellH, cellW, cellH, TargetFPS, label,
			))
		}

		base := fmt.Sprintf("color=c=black:s=%dx%d:r=%d[canvas]", w, h, TargetFPS)
		parts = append(parts, base)

		current := "canvas"
		for i, label := range normalized {
			next := fmt.Sprintf("ov%d", i)
			parts = append(parts, fmt.Sprintf("[%s][%s]overlay=x=%d:y=%d[%s]", current, label, cells[i].x, cells[i].y, next))
			current = next
		}
		videoLabel = current
	}

	audioLabel = ""
	if a == 1 {
		audioLabel = fmt.Sprintf("a%d", v)
		parts = append(parts, fmt.Sprintf("[%d:a]aresample=async=1:first_pts=0[%s]", v, audioLabel))
	} else if a > 1 {
		inputs := make([]string, a)
		for i := 0; i < a; i++ {
			resampled := fmt.Sprintf("ar%d", i)
			inputs[i] = fmt.Sprintf("[%s]", resampled)
			parts = append(parts, fmt.Sprintf("[%d:a]aresample=async=1:first_pts=0[%s]", v+i, resampled))
		}
		audioLabel = "amix"
		parts = append(parts, fmt.Sprintf("%samix=inputs=%d:normalize=1:duration=longest,asetpts=PTS-STARTPTS[%s]", strings.Join(inputs, ""), a, audioLabel))
	}

	return strings.Join(parts, ";"), videoLabel, audioLabel
}
