// Package config loads flockvm's runtime configuration: worker counts,
// listen address, and cluster peers. Grounded on cmd/barn/main.go's flag
// handling combined with conformance/loader.go's yaml.v3 usage — flags
// for what a single invocation typically overrides, a YAML file for what
// a deployment holds steady.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is flockvm's full runtime configuration (§5/§6 and the cluster
// wiring this implementation adds on top).
type Config struct {
	// MaxLocalWorkers bounds the local worker pool (§4.4: "min(num_cpus,
	// MAX_LOCAL_WORKERS)"). Zero means "use num_cpus unmodified".
	MaxLocalWorkers int `yaml:"max-local-workers"`

	// ListenPort is the TCP port flockvm's cluster server accepts
	// incoming peer connections on. Zero disables the cluster server.
	ListenPort int `yaml:"listen-port"`

	// Peers lists addresses ("host:port") of cluster peers this process
	// dials at startup and runs a RemoteExecutor against (§4.5/§4.6).
	Peers []string `yaml:"peers"`

	// ClusterSecretHash is the crypt(3) hash of the shared cluster join
	// secret (see cluster.HashJoinToken) — the plaintext never appears in
	// config on disk.
	ClusterSecretHash string `yaml:"cluster-secret-hash"`

	// ClusterSecret is the plaintext secret used to authenticate this
	// process's own outbound and inbound peer connections (§ domain
	// stack: blake2b/HKDF handshake). Supplied via the -cluster-secret
	// flag, deliberately not a yaml field, so it never round-trips through
	// a config file.
	ClusterSecret string `yaml:"-"`

	// QueueCapacity sizes the shared work-stealing channel's buffer
	// (queue.New) — a backlog measure, not a hard cap.
	QueueCapacity int `yaml:"queue-capacity"`

	// TraceEnabled turns on DUMP_DEBUG and scheduler lifecycle tracing.
	TraceEnabled bool `yaml:"trace"`
}

// Default returns the configuration flockvm runs with if neither a config
// file nor flags override anything.
func Default() Config {
	return Config{
		MaxLocalWorkers: 0,
		ListenPort:      0,
		QueueCapacity:   256,
		TraceEnabled:    false,
	}
}

// Load reads a YAML config file at path and layers it over Default(). A
// missing path is not an error — it just returns the defaults, matching
// how cmd/barn/main.go treats its database path as optional-with-a-default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// RegisterFlags binds flag.CommandLine flags to cfg's fields, in the
// command's own "flags override the file" convention (flag.Parse must be
// called by the caller after RegisterFlags, per cmd/barn/main.go's style).
func RegisterFlags(cfg *Config) {
	flag.IntVar(&cfg.MaxLocalWorkers, "max-local-workers", cfg.MaxLocalWorkers, "maximum local worker count (0 = num CPUs)")
	flag.IntVar(&cfg.ListenPort, "listen-port", cfg.ListenPort, "TCP port to accept cluster peer connections on (0 disables)")
	flag.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "shared task queue backlog capacity")
	flag.BoolVar(&cfg.TraceEnabled, "trace", cfg.TraceEnabled, "enable DUMP_DEBUG and scheduler tracing")
	flag.StringVar(&cfg.ClusterSecret, "cluster-secret", cfg.ClusterSecret, "shared cluster authentication secret")

	flag.StringVar(&peersFlag, "peers", "", "comma-separated list of peer addresses (host:port)")
}

// peersFlag is where RegisterFlags stashes the raw -peers value so
// ResolvePeers can split it after flag.Parse runs.
var peersFlag string

// ResolvePeers merges any -peers flag value (comma-separated) into cfg's
// Peers list, appending to whatever the YAML file already specified.
func ResolvePeers(cfg *Config) {
	if peersFlag == "" {
		return
	}
	for _, addr := range strings.Split(peersFlag, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			cfg.Peers = append(cfg.Peers, addr)
		}
	}
}
