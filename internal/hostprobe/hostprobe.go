// Package hostprobe detects a node's encoding capabilities: CPU core
// count, available memory, and which known encoders the encoder binary lists.
// Memory detection is platform-specific (spec.md §9); this file holds the
// portable surface and a documented fallback, with the Linux backend in
// hostprobe_linux.go.
package hostprobe

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// FallbackMemoryGB is used on platforms/failures where memory can't be
// detected. Chosen conservatively low so MaxConcurrentChunks doesn't overcommit.
const FallbackMemoryGB = 2.0

// knownEncoders is the set of encoder names searched for in the configured
// encoder binary's own `-encoders` listing.
var knownEncoders = []string{
	"libx264", "libx265", "libsvtav1", "libaom-av1", "libvpx-vp9", "h264_nvenc", "hevc_nvenc",
}

// CPUCores returns the number of logical CPUs available to this process.
func CPUCores() int {
	return runtime.NumCPU()
}

// MaxConcurrentChunks is spec.md §4.5's default: max(1, cpu_cores/2).
func MaxConcurrentChunks(cpuCores int) int {
	if v := cpuCores / 2; v > 1 {
		return v
	}
	return 1
}

// ProbeSupportedEncoders runs `encoderBinary -encoders` and returns which
// of knownEncoders appear in its output. A failure to run the binary
// yields an empty list rather than an error: capability detection is
// best-effort and callers may override it from config.
func ProbeSupportedEncoders(encoderBinary string) []string {
	if encoderBinary == "" {
		encoderBinary = "ffmpeg"
	}
	out, err := exec.Command(encoderBinary, "-encoders").CombinedOutput()
	if err != nil {
		return nil
	}

	text := string(out)
	var found []string
	for _, name := range knownEncoders {
		if strings.Contains(text, name) {
			found = append(found, name)
		}
	}
	return found
}

// Detect builds a node's capabilities, using a platform memory backend,
// and applying any of the given overrides that are non-zero.
func Detect(encoderBinary string, overrides swarm.NodeCapabilities) swarm.NodeCapabilities {
	caps := swarm.NodeCapabilities{
		CPUCores: CPUCores(),
		MemoryGB: AvailableMemoryGB(),
	}
	caps.MaxConcurrentChunks = MaxConcurrentChunks(caps.CPUCores)
	caps.SupportedEncoders = ProbeSupportedEncoders(encoderBinary)

	if overrides.CPUCores > 0 {
		caps.CPUCores = overrides.CPUCores
	}
	if overrides.MemoryGB > 0 {
		caps.MemoryGB = overrides.MemoryGB
	}
	if overrides.MaxConcurrentChunks > 0 {
		caps.MaxConcurrentChunks = overrides.MaxConcurrentChunks
	}
	if len(overrides.SupportedEncoders) > 0 {
		caps.SupportedEncoders = overrides.SupportedEncoders
	}
	return caps
}
