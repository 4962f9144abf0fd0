// Package jobpath computes the per-job scratch directory layout used by
// the client: base_dir/ferris_swarm_jobs/<hash16>/{segments,encoded_chunks}.
package jobpath

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const jobsDirName = "ferris_swarm_jobs"

// Layout describes one job's scratch directories, all rooted under BaseDir.
type Layout struct {
	BaseDir           string
	Hash              string
	JobDir            string
	SegmentsDir       string
	EncodedChunksDir  string
	SidecarPath       string
}

// Hash returns the 16-hex-character job-hash for an (input, output) pair:
// hex(sha256(input ∥ output)[:8]). Pure function of its inputs, so the
// same pair always yields the same scratch path, across runs and OSes.
func Hash(inputPath, outputPath string) string {
	sum := sha256.Sum256([]byte(inputPath + outputPath))
	return hex.EncodeToString(sum[:8])
}

// New computes the scratch layout for a job, without creating anything on disk.
func New(baseDir, inputPath, outputPath string) Layout {
	hash := Hash(inputPath, outputPath)
	jobDir := filepath.Join(baseDir, jobsDirName, hash)
	return Layout{
		BaseDir:          baseDir,
		Hash:             hash,
		JobDir:           jobDir,
		SegmentsDir:      filepath.Join(jobDir, "segments"),
		EncodedChunksDir: filepath.Join(jobDir, "encoded_chunks"),
		SidecarPath:      filepath.Join(jobDir, "non_video_streams.mkv"),
	}
}

// Create makes the job's segments and encoded_chunks directories.
func (l Layout) Create() error {
	for _, dir := range []string{l.SegmentsDir, l.EncodedChunksDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create scratch directory %s: %w", dir, err)
		}
	}
	return nil
}

// Cleanup removes the whole job directory.
func (l Layout) Cleanup() error {
	if l.JobDir == "" {
		return nil
	}
	return os.RemoveAll(l.JobDir)
}

// EncodedChunkPath is the path an encoded chunk is written to once received.
func (l Layout) EncodedChunkPath(index int) string {
	return filepath.Join(l.EncodedChunksDir, fmt.Sprintf("encoded_chunk_%d.mkv", index))
}
