package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is read once at chaincode or projector start-up.
type Config struct {
	// Chaincode-as-a-service; an empty address means the peer launches the chaincode.
	ServerAddress   string
	ChaincodeID     string
	TLSDisabled     bool
	TLSKeyFile      string
	TLSCertFile     string
	TLSClientCAFile string
	LogSpec         string
	IDStrategy      string
	RulesFile       string
	Rules           Rules
	// Off-chain projector
	RedisURL      string
	DedupTTLHours int
}

// Rules mirrors the contract ruleset in a file- and env-friendly shape. Every endorsing peer
// must load identical values.
type Rules struct {
	WithdrawWindowHours int  `yaml:"withdraw_window_hours" json:"withdraw_window_hours"`
	MaxMessageLength    int  `yaml:"max_message_length" json:"max_message_length"`
	AllowSelfSign       bool `yaml:"allow_self_sign" json:"allow_self_sign"`
	AllowResign         bool `yaml:"allow_resign" json:"allow_resign"`
}

// DedupTTL is how long the projector remembers an applied transaction id.
func (c Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLHours) * time.Hour
}

func (r Rules) WithdrawWindow() time.Duration {
	return time.Duration(r.WithdrawWindowHours) * time.Hour
}

// Load reads the environment. A set but malformed number or boolean is reported as an error
// instead of falling back to its default.
func Load() (Config, error) {
	var env envReader
	cfg := Config{
		ServerAddress:   getenv("CHAINCODE_SERVER_ADDRESS", ""),
		ChaincodeID:     getenv("CHAINCODE_ID", ""),
		TLSDisabled:     env.getenvBool("CHAINCODE_TLS_DISABLED", true),
		TLSKeyFile:      getenv("CHAINCODE_TLS_KEY", ""),
		TLSCertFile:     getenv("CHAINCODE_TLS_CERT", ""),
		TLSClientCAFile: getenv("CHAINCODE_CLIENT_CA_CERT", ""),
		LogSpec:         getenv("PETITION_LOG_SPEC", "info"),
		IDStrategy:      getenv("PETITION_ID_STRATEGY", "sequence"),
		RulesFile:       getenv("PETITION_RULES_FILE", ""),
		Rules: Rules{
			WithdrawWindowHours: env.getenvInt("PETITION_WITHDRAW_WINDOW_HOURS", 24),
			MaxMessageLength:    env.getenvInt("PETITION_MAX_MESSAGE_LENGTH", 280),
			AllowSelfSign:       env.getenvBool("PETITION_ALLOW_SELF_SIGN", false),
			AllowResign:         env.getenvBool("PETITION_ALLOW_RESIGN", false),
		},
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),
		DedupTTLHours: env.getenvInt("PROJECTOR_DEDUP_TTL_HOURS", 168),
	}
	return cfg, errors.Join(env.errs...)
}

// LoadRulesFile overlays the YAML file at path on base. Keys missing from the file keep the
// base value.
func LoadRulesFile(path string, base Rules) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("load rules %q: %w", path, err)
	}
	rules := base
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return base, fmt.Errorf("parse rules %q: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return base, fmt.Errorf("rules %q: %w", path, err)
	}
	return rules, nil
}

func (r Rules) Validate() error {
	if r.WithdrawWindowHours < 0 {
		return fmt.Errorf("withdraw_window_hours must not be negative, got %d", r.WithdrawWindowHours)
	}
	if r.MaxMessageLength <= 0 {
		return fmt.Errorf("max_message_length must be positive, got %d", r.MaxMessageLength)
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// envReader collects parse failures so Load reports every bad variable at once.
type envReader struct {
	errs []error
}

func (e *envReader) getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return fallback
	}
	return parsed
}

func (e *envReader) getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, value))
		return fallback
	}
	return parsed
}
