package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/visa2any/fareguard/internal/dataType"
	"github.com/visa2any/fareguard/internal/utils"
)

const secretEnvVar = "FAREGUARD_SECRET_KEY"

type MainConfig struct {
	Port     string `yaml:"port"`
	OpsPath  string `yaml:"ops_path"`
	RulePath string `yaml:"rule_path"`
	LogPath  string `yaml:"log_path"`
	Debug    bool   `yaml:"debug"`
	NodeName string `yaml:"node_name"`

	Store     string `yaml:"store" validate:"oneof=memory redis"`
	RedisAddr string `yaml:"redis_addr" validate:"required_if=Store redis"`

	ConnectingIPHeaders   []string `yaml:"connecting_ip_headers"`
	ConnectingHostHeaders []string `yaml:"connecting_host_headers"`
	ConnectingURIHeaders  []string `yaml:"connecting_uri_headers"`

	ScreenHeader    string `yaml:"screen_header"`
	TimezoneHeader  string `yaml:"timezone_header"`
	EngineSigHeader string `yaml:"engine_sig_header"`
	SessionHeader   string `yaml:"session_header"`
}

// LoadMainConfig reads the configuration file and returns the
// configuration object.
func LoadMainConfig(basePath string) (*MainConfig, error) {
	cfg := MainConfig{
		Port:                  "26600",
		OpsPath:               "/fareguard",
		RulePath:              "./config/rules",
		LogPath:               "",
		NodeName:              "Fareguard",
		Store:                 "memory",
		ConnectingIPHeaders:   []string{"Fareguard-Real-IP", "X-Real-IP", "X-Forwarded-For"},
		ConnectingHostHeaders: []string{"Fareguard-Real-Host"},
		ConnectingURIHeaders:  []string{"Fareguard-Original-URI"},
		ScreenHeader:          "Fareguard-Screen",
		TimezoneHeader:        "Fareguard-Timezone",
		EngineSigHeader:       "Fareguard-Engine-Sig",
		SessionHeader:         "Fareguard-Session",
	}

	if basePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Dir(exePath)
	}
	configPath := filepath.Join(basePath, "config", "fareguard.yml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid main config %s: %w", configPath, err)
	}
	return &cfg, nil
}

// RuleSet stores all protection rules.
type RuleSet struct {
	Detection         *dataType.DetectionRule
	Challenge         *dataType.ChallengeRule
	PricingToken      *dataType.PricingTokenRule
	Classes           *dataType.ClassRule
	RateBudgets       map[dataType.RequestClass]dataType.RateBudget
	KnownBots         []string
	ScraperSignatures []string
	StaticBlockTrie   *dataType.TrieNode
}

type ruleSetWrapper struct {
	Detection    *dataType.DetectionRule    `yaml:"Detection"`
	Challenge    *dataType.ChallengeRule    `yaml:"Challenge"`
	PricingToken *dataType.PricingTokenRule `yaml:"PricingToken"`
	Classes      *dataType.ClassRule        `yaml:"Classes"`
	RateLimit    map[string]string          `yaml:"RateLimit"`
}

// LoadRules loads every rule file from the rule path: Protection.yml,
// the signature list files, and the static address deny-list. A
// missing signing secret is fatal here, before any request is served.
func LoadRules(rulePath string) (*RuleSet, error) {
	rs := RuleSet{
		Detection: &dataType.DetectionRule{
			CacheTTL:            300,
			AutoBlock:           true,
			Thresholds:          dataType.DefaultThresholds(),
			Weights:             dataType.DefaultScoreWeights(),
			HighVolumeThreshold: 150,
			MinSearchBurst:      10,
			SuspicionThreshold:  50,
			SuspicionOnBlock:    30,
			SuspicionOnMonitor:  5,
		},
		Challenge:       &dataType.ChallengeRule{TTL: 300, Reward: 25},
		PricingToken:    &dataType.PricingTokenRule{Step: 30, Window: 300},
		Classes:         &dataType.ClassRule{},
		RateBudgets:     make(map[dataType.RequestClass]dataType.RateBudget),
		StaticBlockTrie: &dataType.TrieNode{},
	}

	yamlFile := filepath.Join(rulePath, "Protection.yml")
	yamlData, err := os.ReadFile(yamlFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", yamlFile, err)
	}

	wrapper := ruleSetWrapper{
		Detection:    rs.Detection,
		Challenge:    rs.Challenge,
		PricingToken: rs.PricingToken,
		Classes:      rs.Classes,
	}
	if err := yaml.Unmarshal(yamlData, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", yamlFile, err)
	}

	for class, rate := range wrapper.RateLimit {
		limit, window, err := utils.ParseRate(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for class %s: %w", class, err)
		}
		rs.RateBudgets[dataType.RequestClass(class)] = dataType.RateBudget{Limit: limit, Window: window}
	}

	if rs.Detection.SecretKey == "" {
		rs.Detection.SecretKey = os.Getenv(secretEnvVar)
	}
	if rs.Detection.SecretKey == "" {
		return nil, fmt.Errorf("signing secret is not configured: set Detection.secret_key or %s", secretEnvVar)
	}

	if rs.KnownBots, err = loadSignatureList(filepath.Join(rulePath, "KnownBots.conf")); err != nil {
		return nil, err
	}
	if rs.ScraperSignatures, err = loadSignatureList(filepath.Join(rulePath, "ScraperSignatures.conf")); err != nil {
		return nil, err
	}
	if err = loadAddressRules(filepath.Join(rulePath, "IP_BlockList.conf"), rs.StaticBlockTrie); err != nil {
		return nil, err
	}

	v := validator.New()
	if err := v.Struct(rs.Detection); err != nil {
		return nil, fmt.Errorf("invalid detection rules: %w", err)
	}
	if err := v.Struct(rs.Challenge); err != nil {
		return nil, fmt.Errorf("invalid challenge rules: %w", err)
	}
	if err := v.Struct(rs.PricingToken); err != nil {
		return nil, fmt.Errorf("invalid pricing token rules: %w", err)
	}

	return &rs, nil
}

// loadSignatureList reads one matcher token per line; order in the
// file is match order.
func loadSignatureList(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()

	var list []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, line)
	}
	return list, scanner.Err()
}

// loadAddressRules reads the static deny-list of addresses and CIDR
// ranges into the trie.
func loadAddressRules(filePath string, trie *dataType.TrieNode) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := trie.InsertString(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
