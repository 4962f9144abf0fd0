package settingsfile

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// ManifestConstellation holds the [constellation] section of a nodes manifest.
type ManifestConstellation struct {
	URL                  string `toml:"url"`
	AutoRegister         bool   `toml:"auto_register"`
	HeartbeatInterval    uint64 `toml:"heartbeat_interval"`
	RegistrationInterval uint64 `toml:"registration_interval"`
}

// ManifestNode is one pre-registration entry in a nodes manifest.
type ManifestNode struct {
	Name         string                  `toml:"name"`
	Address      string                  `toml:"address"`
	Enabled      bool                    `toml:"enabled"`
	Capabilities swarm.NodeCapabilities  `toml:"capabilities"`
	Tags         map[string]string       `toml:"tags"`
}

// NodesManifest is the optional TOML file the constellation polls to
// pre-register known nodes (spec.md §4.7).
type NodesManifest struct {
	Constellation ManifestConstellation `toml:"constellation"`
	Nodes         []ManifestNode        `toml:"nodes"`
}

func defaultManifest() NodesManifest {
	return NodesManifest{
		Constellation: ManifestConstellation{
			URL:                  "http://localhost:3030",
			AutoRegister:         true,
			HeartbeatInterval:    30,
			RegistrationInterval: 60,
		},
	}
}

// LoadManifest reads a nodes manifest file. A missing path yields the
// defaults with zero node entries: callers should treat that as "nothing
// to do" rather than an error.
func LoadManifest(path string) (NodesManifest, error) {
	manifest := defaultManifest()
	if path == "" {
		return manifest, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return manifest, nil
	}
	if _, err := toml.DecodeFile(path, &manifest); err != nil {
		return manifest, err
	}
	return manifest, nil
}

// GenerateManifest writes an example nodes manifest, for `constellation
// nodes --generate`.
func GenerateManifest(path string) error {
	manifest := defaultManifest()
	manifest.Nodes = []ManifestNode{
		{
			Name:    "node-1",
			Address: "http://127.0.0.1:50051",
			Enabled: true,
			Capabilities: swarm.NodeCapabilities{
				MaxConcurrentChunks: 2,
				SupportedEncoders:   []string{"libx264"},
				CPUCores:            4,
				MemoryGB:            8,
			},
			Tags: map[string]string{"zone": "local"},
		},
	}
	return writeTOMLFile(path, manifest)
}

// ConstellationSettings configures the constellation HTTP/dashboard server.
type ConstellationSettings struct {
	Bind                string `toml:"bind"`
	NodeTimeoutSeconds  uint64 `toml:"node_timeout_seconds"`
	ClientTimeoutSeconds uint64 `toml:"client_timeout_seconds"`
	RefreshIntervalMs   uint64 `toml:"refresh_interval_ms"`
	AutoRegister        bool   `toml:"auto_register"`
	NoMDNS              bool   `toml:"no_mdns"`
	NodesConfigPath     string `toml:"nodes_config"`
}

func defaultConstellationSettings() ConstellationSettings {
	return ConstellationSettings{
		Bind:                 "0.0.0.0:3030",
		NodeTimeoutSeconds:   120,
		ClientTimeoutSeconds: 300,
		RefreshIntervalMs:    1000,
		AutoRegister:         true,
	}
}

// LoadConstellationSettings loads the constellation's own TOML config section.
func LoadConstellationSettings(path string) (ConstellationSettings, error) {
	settings := defaultConstellationSettings()
	if path == "" {
		return settings, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return settings, nil
	}

	var wrapper struct {
		Constellation ConstellationSettings `toml:"constellation"`
	}
	wrapper.Constellation = settings
	if _, err := toml.DecodeFile(path, &wrapper); err != nil {
		return settings, err
	}
	return wrapper.Constellation, nil
}

// GenerateConstellationConfig writes an example constellation config file,
// for `constellation config --generate`.
func GenerateConstellationConfig(path string) error {
	var wrapper struct {
		Constellation ConstellationSettings `toml:"constellation"`
	}
	wrapper.Constellation = defaultConstellationSettings()
	return writeTOMLFile(path, wrapper)
}
