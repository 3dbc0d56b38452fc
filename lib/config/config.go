// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fuzzfleet/fuzzfleet/lib/cores"
)

// EnvConfigPath is the environment variable naming the config file.
const EnvConfigPath = "FUZZFLEET_CONFIG"

// Campaign is the full configuration for one fuzzing campaign on one
// machine. It is read once at process entry and read-only thereafter;
// re-exec'd workers load the identical file and diverge only on the
// role environment markers.
type Campaign struct {
	// Name tags this campaign's run configuration. Workers with the
	// same name share findings; the transport tag derives from it.
	Name string `yaml:"name"`

	// Cores is the core specification ("all", "0-3,6"). One worker is
	// bound per resolved core.
	Cores string `yaml:"cores"`

	// BrokerPort is the first-tier broker's TCP port.
	BrokerPort uint16 `yaml:"broker_port"`

	// CentralizedBrokerPort is the aggregation tier's TCP port. Only
	// used by centralized campaigns.
	CentralizedBrokerPort uint16 `yaml:"centralized_broker_port"`

	// LaunchDelayMS staggers worker startup: worker k sleeps
	// k*LaunchDelayMS milliseconds before connecting.
	LaunchDelayMS uint64 `yaml:"launch_delay_ms"`

	// SpawnBroker controls whether this invocation runs its own
	// broker. Set false to attach this machine's workers to a broker
	// started by another invocation on the same port.
	SpawnBroker bool `yaml:"spawn_broker"`

	// RemoteBrokerAddr optionally joins this broker to another
	// machine's broker ("host:port").
	RemoteBrokerAddr string `yaml:"remote_broker_addr"`

	// StdoutFile and StderrFile redirect worker output. When
	// StderrFile is empty but StdoutFile is set, stderr shares the
	// stdout file.
	StdoutFile string `yaml:"stdout_file"`
	StderrFile string `yaml:"stderr_file"`

	// SaveState selects the client state persistence policy:
	// "always", "on-restart", "never", or "adaptive".
	SaveState string `yaml:"save_state"`
}

// Default returns a Campaign with the documented defaults applied.
// Loaded files override these field by field.
func Default() Campaign {
	return Campaign{
		Name:                  "default",
		Cores:                 "all",
		BrokerPort:            1337,
		CentralizedBrokerPort: 1338,
		LaunchDelayMS:         10,
		SpawnBroker:           true,
		SaveState:             "on-restart",
	}
}

// Load reads the campaign config from path, or from $FUZZFLEET_CONFIG
// when path is empty. An empty path with no environment variable
// returns the defaults.
func Load(path string) (Campaign, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	campaign := Default()
	if path == "" {
		return campaign, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Campaign{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &campaign); err != nil {
		return Campaign{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return campaign, nil
}

// Validate checks the campaign before any process is created. It
// returns the first problem found.
func (c Campaign) Validate() error {
	if c.Name == "" {
		return errors.New("campaign name is required")
	}
	if _, err := cores.Parse(c.Cores); err != nil {
		return fmt.Errorf("cores: %w", err)
	}
	if c.BrokerPort == 0 {
		return errors.New("broker_port must be non-zero")
	}
	if c.CentralizedBrokerPort == c.BrokerPort {
		return errors.New("centralized_broker_port must differ from broker_port")
	}
	if c.RemoteBrokerAddr != "" {
		if _, _, err := net.SplitHostPort(c.RemoteBrokerAddr); err != nil {
			return fmt.Errorf("remote_broker_addr: %w", err)
		}
	}
	switch c.SaveState {
	case "always", "on-restart", "never", "adaptive":
	default:
		return fmt.Errorf("save_state %q: must be always, on-restart, never, or adaptive", c.SaveState)
	}
	return nil
}

// CoreSet resolves the core specification. Call only after Validate.
func (c Campaign) CoreSet() (cores.Set, error) {
	return cores.Parse(c.Cores)
}
