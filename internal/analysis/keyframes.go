package analysis

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"timelens/internal/capture"
	"timelens/internal/services/vision"
	"timelens/internal/store"
)

// keyframeOptions bounds inference payload size.
type keyframeOptions struct {
	PerSegment int
	MaxWidth   int
	MaxHeight  int
	Quality    int
}

// keyframe pairs an encoded frame with its position in the batch, so the
// prompt can tell the model when each frame was captured.
type keyframe struct {
	Image         vision.Image
	SegmentIndex  int
	OffsetSeconds float64
}

// extractKeyframes pulls up to PerSegment evenly spaced frames from each
// segment's media file, downscaled and re-encoded for the inference payload.
func extractKeyframes(segments []*store.Segment, opts keyframeOptions, segmentOffset func(*store.Segment) float64) ([]keyframe, error) {
	var keyframes []keyframe
	for idx, segment := range segments {
		frames, err := capture.Frames(segment.MediaPath)
		if err != nil {
			return nil, fmt.Errorf("segment %d media: %w", segment.ID, err)
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("segment %d media has no frames", segment.ID)
		}

		indexes := sampleIndexes(len(frames), opts.PerSegment)
		frameSpacing := segment.DurationSeconds / float64(len(frames))
		for _, frameIdx := range indexes {
			img, err := capture.DecodeFrame(frames[frameIdx])
			if err != nil {
				return nil, fmt.Errorf("segment %d frame %d: %w", segment.ID, frameIdx, err)
			}
			encoded, err := encodeInferenceFrame(img, opts)
			if err != nil {
				return nil, fmt.Errorf("segment %d frame %d: %w", segment.ID, frameIdx, err)
			}
			keyframes = append(keyframes, keyframe{
				Image:         vision.Image{DataURL: encoded, Detail: "low"},
				SegmentIndex:  idx,
				OffsetSeconds: segmentOffset(segment) + float64(frameIdx)*frameSpacing,
			})
		}
	}
	return keyframes, nil
}

// sampleIndexes picks up to limit evenly spaced indexes across n frames,
// always including the first frame.
func sampleIndexes(n, limit int) []int {
	if limit <= 0 || n <= limit {
		indexes := make([]int, n)
		for i := range indexes {
			indexes[i] = i
		}
		return indexes
	}
	if limit == 1 {
		return []int{0}
	}
	indexes := make([]int, 0, limit)
	step := float64(n-1) / float64(limit-1)
	prev := -1
	for i := 0; i < limit; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx == prev {
			continue
		}
		indexes = append(indexes, idx)
		prev = idx
	}
	return indexes
}

func encodeInferenceFrame(img image.Image, opts keyframeOptions) (string, error) {
	scaled := downscale(img, opts.MaxWidth, opts.MaxHeight)

	var buf bytes.Buffer
	quality := opts.Quality
	if quality <= 0 {
		quality = 70
	}
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode inference frame: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// downscale fits the image inside maxWidth x maxHeight preserving aspect
// ratio. Images already inside the bounds pass through untouched.
func downscale(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if maxWidth <= 0 || maxHeight <= 0 || (width <= maxWidth && height <= maxHeight) {
		return img
	}

	scale := float64(maxWidth) / float64(width)
	if h := float64(maxHeight) / float64(height); h < scale {
		scale = h
	}
	dstWidth := int(float64(width) * scale)
	dstHeight := int(float64(height) * scale)
	if dstWidth < 1 {
		dstWidth = 1
	}
	if dstHeight < 1 {
		dstHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
