// Package muxer reassembles a job's sorted, encoded chunks and its
// sidecar non-video streams into the final output file (spec.md §4.3).
package muxer

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Backend selects which external tool performs the final concatenation.
type Backend string

const (
	// BackendConcat uses ffmpeg's concat demuxer.
	BackendConcat Backend = "concat"
	// BackendMerge uses mkvmerge's sequential-append muxing.
	BackendMerge Backend = "merge"
)

// Mux reassembles encodedChunkPaths (already sorted ascending by index)
// and sidecarPath into outputPath, using the given backend. expectedCount
// is the job's known total chunk count, checked against
// len(encodedChunkPaths) before any external tool runs. scratchDir is
// used for the concat backend's temporary manifest file.
func Mux(backend Backend, encodedChunkPaths []string, sidecarPath, outputPath, scratchDir string, expectedCount int) error {
	if err := checkPreconditions(encodedChunkPaths, sidecarPath, expectedCount); err != nil {
		return err
	}

	switch backend {
	case BackendMerge:
		return muxWithMkvmerge(encodedChunkPaths, sidecarPath, outputPath)
	case BackendConcat, "":
		return muxWithConcatDemuxer(encodedChunkPaths, sidecarPath, outputPath, scratchDir)
	default:
		return fmt.Errorf("unknown muxer backend %q", backend)
	}
}

// checkPreconditions verifies segment count, segment existence, and
// sidecar existence before invoking any external tool. Violating any of
// these is a fatal, non-retryable concatenation error (spec.md §4.3).
func checkPreconditions(encodedChunkPaths []string, sidecarPath string, expectedCount int) error {
	if len(encodedChunkPaths) == 0 {
		return fmt.Errorf("no encoded chunks provided for muxing")
	}
	if len(encodedChunkPaths) != expectedCount {
		return fmt.Errorf("segment count mismatch: expected %d, got %d", expectedCount, len(encodedChunkPaths))
	}
	for _, path := range encodedChunkPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("encoded chunk not found: %s: %w", path, err)
		}
	}
	if _, err := os.Stat(sidecarPath); err != nil {
		return fmt.Errorf("sidecar file not found: %s: %w", sidecarPath, err)
	}
	return nil
}

// muxWithConcatDemuxer writes a concat manifest listing every chunk's
// absolute path, then invokes ffmpeg with the manifest as one input and
// the sidecar as a second, mapping video from the first and everything
// else from the second, stream-copying throughout.
func muxWithConcatDemuxer(encodedChunkPaths []string, sidecarPath, outputPath, scratchDir string) (err error) {
	manifestPath := filepath.Join(scratchDir, "concat_manifest.txt")
	if err := writeConcatManifest(manifestPath, encodedChunkPaths); err != nil {
		return err
	}
	defer func() { _ = os.Remove(manifestPath) }()

	cmd := exec.Command("ffmpeg",
		"-hide_banner",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-i", sidecarPath,
		"-map", "0:v?",
		"-map", "1?",
		"-c", "copy",
		"-y",
		outputPath,
	)
	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("ffmpeg concat muxing failed: %w\noutput: %s", runErr, string(output))
	}
	return nil
}

// writeConcatManifest writes one `file '<absolute-path>'` line per chunk,
// in order, matching ffmpeg's concat-demuxer manifest format.
func writeConcatManifest(manifestPath string, paths []string) (err error) {
	f, err := os.Create(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to create concat manifest: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close concat manifest: %w", cerr)
		}
	}()

	for _, p := range paths {
		absPath, absErr := filepath.Abs(p)
		if absErr != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", p, absErr)
		}
		if _, writeErr := fmt.Fprintf(f, "file '%s'\n", absPath); writeErr != nil {
			return fmt.Errorf("failed to write concat manifest entry: %w", writeErr)
		}
	}
	return nil
}

// muxWithMkvmerge appends every chunk sequentially (first file, then
// `+`-prefixed continuations) and muxes the sidecar as an additional
// input; mkvmerge writes the output directly, no manifest required.
func muxWithMkvmerge(encodedChunkPaths []string, sidecarPath, outputPath string) error {
	args := []string{"-o", outputPath}
	for i, path := range encodedChunkPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for %s: %w", path, err)
		}
		if i > 0 {
			args = append(args, "+")
		}
		args = append(args, absPath)
	}

	absSidecar, err := filepath.Abs(sidecarPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path for sidecar %s: %w", sidecarPath, err)
	}
	args = append(args, absSidecar)

	cmd := exec.Command("mkvmerge", args...)
	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("mkvmerge muxing failed: %w\noutput: %s", runErr, string(output))
	}
	return nil
}
