package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const Name = "inboxd"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host         string
		HttpPort     int    `yaml:"httpPort"`
		SslDomain    string `yaml:"sslDomain"`
		DatabasePath string `yaml:"databasePath"`
	}
	Federation FederationConfig
}

// FederationConfig controls how inbound activities are accepted and how far
// the resolver may reach out to peers while processing one of them.
type FederationConfig struct {
	Enabled              bool
	FetchLimit           int           `yaml:"fetchLimit"`
	FetchTimeout         time.Duration `yaml:"fetchTimeout"`
	MaxFetchBytes        int64         `yaml:"maxFetchBytes"`
	MaxBodyBytes         int64         `yaml:"maxBodyBytes"`
	AllowHttp            bool          `yaml:"allowHttp"`
	SignedFetch          bool          `yaml:"signedFetch"`
	BlockedInstances     []string      `yaml:"blockedInstances"`
	AllowedInstances     []string      `yaml:"allowedInstances"`
	EnableDownvotes      bool          `yaml:"enableDownvotes"`
	ActorRefreshInterval time.Duration `yaml:"actorRefreshInterval"`
	SignatureMaxSkew     time.Duration `yaml:"signatureMaxSkew"`
	ProcessTimeout       time.Duration `yaml:"processTimeout"`
	LedgerRetention      time.Duration `yaml:"ledgerRetention"`
}

func ReadConf() (*AppConfig, error) {

	configPath := ResolvePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		if err := os.WriteFile(configPath, embeddedConfig, 0644); err != nil {
			log.Printf("Warning: could not write default config to %s: %v", configPath, err)
		} else {
			log.Printf("Created default config file at %s", configPath)
		}
	}

	c, err := ParseConf(buf)
	if err != nil {
		return nil, err
	}
	applyEnv(c)
	return c, nil
}

// ParseConf decodes a yaml document on top of the embedded defaults.
func ParseConf(buf []byte) (*AppConfig, error) {
	c := &AppConfig{}
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		return nil, fmt.Errorf("in embedded config: %w", err)
	}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}
	if c.Federation.FetchLimit <= 0 {
		return nil, fmt.Errorf("federation.fetchLimit must be positive, got %d", c.Federation.FetchLimit)
	}
	return c, nil
}

func applyEnv(c *AppConfig) {
	if v := os.Getenv("INBOXD_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("INBOXD_HTTPPORT"); v != "" {
		setInt(&c.Conf.HttpPort, "INBOXD_HTTPPORT", v)
	}
	if v := os.Getenv("INBOXD_SSLDOMAIN"); v != "" {
		c.Conf.SslDomain = v
	}
	if v := os.Getenv("INBOXD_DATABASE"); v != "" {
		c.Conf.DatabasePath = v
	}
	if v := os.Getenv("INBOXD_FETCH_LIMIT"); v != "" {
		setInt(&c.Federation.FetchLimit, "INBOXD_FETCH_LIMIT", v)
	}
	if v := os.Getenv("INBOXD_BLOCKED_INSTANCES"); v != "" {
		c.Federation.BlockedInstances = splitList(v)
	}
	if v := os.Getenv("INBOXD_ALLOWED_INSTANCES"); v != "" {
		c.Federation.AllowedInstances = splitList(v)
	}
	if os.Getenv("INBOXD_ALLOW_HTTP") == "true" {
		c.Federation.AllowHttp = true
	}
	if os.Getenv("INBOXD_ENABLE_DOWNVOTES") == "false" {
		c.Federation.EnableDownvotes = false
	}
	if os.Getenv("INBOXD_FEDERATION") == "false" {
		c.Federation.Enabled = false
	}
}

func setInt(dst *int, name, v string) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Ignoring %s=%q: not a positive number", name, v)
		return
	}
	*dst = n
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LocalHost is the host peers use to reach this instance.
func (c *AppConfig) LocalHost() string {
	if c.Conf.SslDomain != "" {
		return c.Conf.SslDomain
	}
	return fmt.Sprintf("%s:%d", c.Conf.Host, c.Conf.HttpPort)
}

// BaseURL is the origin of every local ActivityPub id.
func (c *AppConfig) BaseURL() string {
	if c.Conf.SslDomain != "" {
		return "https://" + c.Conf.SslDomain
	}
	return "http://" + c.LocalHost()
}
