// Package segmenter splits a source video into keyframe-aligned chunks
// and extracts its non-video streams into a sidecar container, ahead of
// dispatching those chunks to the node fleet (spec.md §4.1).
package segmenter

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
)

// ChunkPattern is ffmpeg's segment-muxer output template. Because
// splitting can only happen at keyframes, the number of segments actually
// produced cannot be predicted from the input and duration alone — it is
// discovered afterward by enumerating segmentDir.
const ChunkPattern = "chunk_%04d.mp4"

// SidecarFilename holds every non-video stream (audio, subtitles,
// chapters, attachments, metadata) extracted from the source.
const SidecarFilename = "non_video_streams.mkv"

// Result is what one segmentation run produced.
type Result struct {
	// ChunkPaths is sorted lexicographically, which — given the
	// zero-padded numeric pattern — also sorts by chunk index.
	ChunkPaths  []string
	SidecarPath string
}

// Segment runs the external segmenter against inputPath, writing segment
// files into segmentDir and the sidecar into segmentDir's parent. If the segmenter produces no
// segments, Segment returns a zero-value Result and a nil error: callers
// must treat that as a no-op success (spec.md §4.1 "Failure").
func Segment(inputPath string, segmentDurationSecs float64, segmentDir string) (Result, error) {
	if err := os.MkdirAll(segmentDir, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create segment directory %s: %w", segmentDir, err)
	}

	if err := verifyFFmpeg(); err != nil {
		return Result{}, err
	}

	if err := splitVideo(inputPath, segmentDurationSecs, segmentDir); err != nil {
		return Result{}, err
	}

	chunkPaths, err := enumerateChunks(segmentDir)
	if err != nil {
		return Result{}, err
	}
	if len(chunkPaths) == 0 {
		return Result{}, nil
	}

	sidecarPath, err := extractSidecar(inputPath, segmentDir)
	if err != nil {
		return Result{}, err
	}

	return Result{ChunkPaths: chunkPaths, SidecarPath: sidecarPath}, nil
}

// splitVideo shells out to ffmpeg's segment muxer, copying streams
// losslessly and splitting only at keyframes.
func splitVideo(inputPath string, segmentDurationSecs float64, segmentDir string) error {
	outputPattern := filepath.Join(segmentDir, ChunkPattern)

	cmd := exec.Command("ffmpeg",
		"-hide_banner",
		"-i", inputPath,
		"-y",
		"-an", // video only: audio/subs/data go to the sidecar instead
		"-sn",
		"-dn",
		"-c", "copy",
		"-map", "0",
		"-segment_time", strconv.FormatFloat(segmentDurationSecs, 'f', -1, 64),
		"-f", "segment",
		"-reset_timestamps", "1",
		outputPattern,
	)
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to split video %s: %w", inputPath, err)
	}
	return nil
}

// extractSidecar pulls every non-video stream of inputPath into a single
// container alongside segmentDir. The sidecar must contain no video
// stream (spec.md §4.1) — "-vn" enforces that.
func extractSidecar(inputPath, segmentDir string) (string, error) {
	sidecarPath := filepath.Join(filepath.Dir(segmentDir), SidecarFilename)

	cmd := exec.Command("ffmpeg",
		"-hide_banner",
		"-i", inputPath,
		"-y",
		"-map", "0",
		"-vn",
		"-c", "copy",
		sidecarPath,
	)
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to extract non-video streams from %s: %w", inputPath, err)
	}
	return sidecarPath, nil
}

// enumerateChunks lists segmentDir for .mp4 files and returns them sorted
// lexicographically; the chunk index is this sort's ordinal position
// (spec.md §4.1).
func enumerateChunks(segmentDir string) ([]string, error) {
	entries, err := os.ReadDir(segmentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment directory %s: %w", segmentDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mp4" {
			continue
		}
		paths = append(paths, filepath.Join(segmentDir, entry.Name()))
	}

	sort.Strings(paths)
	return paths, nil
}

// verifyFFmpeg checks ffmpeg is reachable before shelling out to it,
// matching the teacher's "check the binary, then exec it" idiom.
func verifyFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return nil
}
