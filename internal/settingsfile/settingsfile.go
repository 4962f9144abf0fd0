// Package settingsfile loads the optional TOML settings file shared by the
// client, node and constellation binaries. All fields have defaults; the
// file itself is optional, and flags/environment variables layer on top of
// whatever it contains.
package settingsfile

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ClientSettings configures the dispatcher/segmenter/muxer pipeline.
type ClientSettings struct {
	Nodes           []string `toml:"nodes"`
	Slots           []int    `toml:"slots"`
	EncoderParams   []string `toml:"encoder_params"`
	TempDir         string   `toml:"temp_dir"`
	SegmentDuration float64  `toml:"segment_duration"`
}

// NodeSettings configures one node process.
type NodeSettings struct {
	Address               string   `toml:"address"`
	TempDir               string   `toml:"temp_dir"`
	ConstellationURL      string   `toml:"constellation_url"`
	NodeName              string   `toml:"node_name"`
	CPUCores              int      `toml:"cpu_cores"`
	MemoryGB              float64  `toml:"memory_gb"`
	MaxChunks             int      `toml:"max_chunks"`
	Encoders              []string `toml:"encoders"`
	AutoRegister          bool     `toml:"auto_register"`
	Heartbeat             bool     `toml:"heartbeat"`
	HeartbeatIntervalSecs uint64   `toml:"heartbeat_interval"`
}

// ProcessingSettings configures the muxer backend.
type ProcessingSettings struct {
	Concatenator string `toml:"concatenator"` // "ffmpeg" or "mkvmerge", case-insensitive
}

// Settings is the full [client]/[node]/[processing] document.
type Settings struct {
	Client     ClientSettings     `toml:"client"`
	Node       NodeSettings       `toml:"node"`
	Processing ProcessingSettings `toml:"processing"`
}

// Defaults returns a Settings populated with the documented defaults.
func Defaults() Settings {
	return Settings{
		Client: ClientSettings{
			SegmentDuration: 30.0,
		},
		Node: NodeSettings{
			Address:               "0.0.0.0:50051",
			ConstellationURL:      "",
			AutoRegister:          true,
			Heartbeat:             true,
			HeartbeatIntervalSecs: 30,
		},
		Processing: ProcessingSettings{
			Concatenator: "ffmpeg",
		},
	}
}

// Load reads and decodes a TOML settings file over the documented defaults.
// A missing path is not an error: the file is optional everywhere it's used.
func Load(path string) (Settings, error) {
	settings := Defaults()
	if path == "" {
		return settings, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return settings, nil
	}

	if _, err := toml.DecodeFile(path, &settings); err != nil {
		return settings, fmt.Errorf("failed to load settings file %s: %w", path, err)
	}

	settings.Processing.Concatenator = strings.ToLower(settings.Processing.Concatenator)
	return settings, nil
}

// Generate writes a settings file with every field at its default, plus
// example client nodes, slots and encoder parameters. No comments are written.
func Generate(path string) error {
	settings := Defaults()
	settings.Client.Nodes = []string{"http://127.0.0.1:50051"}
	settings.Client.Slots = []int{2}
	settings.Client.EncoderParams = []string{"-c:v", "libx264", "-y"}
	settings.Node.Encoders = []string{"libx264", "libsvtav1"}

	return writeTOMLFile(path, settings)
}

func writeTOMLFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create settings file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode settings file %s: %w", path, err)
	}
	return nil
}
