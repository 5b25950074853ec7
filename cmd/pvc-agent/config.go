package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig is the on-disk node/cluster bootstrap manifest for a single
// pvc-agent instance, analogous to the teacher's apply.go resource files
// but describing this node's identity and wiring rather than a workload.
type AgentConfig struct {
	NodeID        string `yaml:"node_id"`
	BindAddr      string `yaml:"bind_addr"`
	DataDir       string `yaml:"data_dir"`
	Bootstrap     bool   `yaml:"bootstrap"`
	Coordinator   bool   `yaml:"coordinator"`
	ManagementAddr string `yaml:"management_addr"`
	ClusterDomain string `yaml:"cluster_domain"`
	Carrier       string `yaml:"carrier"`
	TickSeconds   int    `yaml:"tick_seconds"`

	IPMI struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"ipmi"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func (c *AgentConfig) tick() time.Duration {
	if c.TickSeconds <= 0 {
		return 0 // let the supervisor apply its own default
	}
	return time.Duration(c.TickSeconds) * time.Second
}

func loadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("config: node_id is required")
	}
	if cfg.BindAddr == "" {
		return nil, fmt.Errorf("config: bind_addr is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("config: data_dir is required")
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = "127.0.0.1:9090"
	}
	if cfg.Carrier == "" {
		cfg.Carrier = "eth0"
	}
	if cfg.ClusterDomain == "" {
		cfg.ClusterDomain = "pvc.local"
	}
	return &cfg, nil
}
