package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
)

// Segment media is a motion-JPEG container: complete JFIF streams written
// back to back, one file per segment. Nothing is buffered beyond the frame
// being written, and any prefix of the file is a valid sequence of frames, so
// a crash mid-write loses at most the last frame.

const frameQuality = 80

// SegmentWriter appends JPEG frames to a segment media file.
type SegmentWriter struct {
	file   *os.File
	writer *bufio.Writer
	frames int
}

// NewSegmentWriter creates the media file for a new segment.
func NewSegmentWriter(path string) (*SegmentWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create segment media: %w", err)
	}
	return &SegmentWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

// WriteFrame encodes one frame onto the end of the segment.
func (w *SegmentWriter) WriteFrame(frame image.Image) error {
	if err := jpeg.Encode(w.writer, frame, &jpeg.Options{Quality: frameQuality}); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	w.frames++
	return nil
}

// FrameCount reports frames written so far.
func (w *SegmentWriter) FrameCount() int {
	return w.frames
}

// Path returns the media file location.
func (w *SegmentWriter) Path() string {
	return w.file.Name()
}

// Close flushes and syncs the segment to disk.
func (w *SegmentWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("flush segment media: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("sync segment media: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close segment media: %w", err)
	}
	return nil
}

// Discard closes and deletes the segment without registering it.
func (w *SegmentWriter) Discard() error {
	_ = w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove discarded segment: %w", err)
	}
	return nil
}

// Frames splits a segment media file back into its raw JPEG streams.
func Frames(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segment media: %w", err)
	}
	return splitFrames(data)
}

// CountFrames reports the number of complete frames in a segment media file.
func CountFrames(path string) (int, error) {
	frames, err := Frames(path)
	if err != nil {
		return 0, err
	}
	return len(frames), nil
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// splitFrames cuts the byte stream at EOI markers. The writer emits bare
// baseline JFIF streams, so FFD8/FFD9 only ever appear as real markers.
func splitFrames(data []byte) ([][]byte, error) {
	var frames [][]byte
	rest := data
	for len(rest) > 0 {
		if !bytes.HasPrefix(rest, jpegSOI) {
			return nil, fmt.Errorf("frame %d does not start with SOI marker", len(frames))
		}
		end := bytes.Index(rest, jpegEOI)
		if end < 0 {
			// Truncated trailing frame (crash mid-write); keep the complete ones.
			break
		}
		frame := rest[:end+len(jpegEOI)]
		frames = append(frames, frame)
		rest = rest[end+len(jpegEOI):]
	}
	return frames, nil
}

// DecodeFrame decodes one raw JPEG stream produced by Frames.
func DecodeFrame(frame []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
