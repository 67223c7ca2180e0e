package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EnvResult holds the results of reading environment overrides.
type EnvResult struct {
	BackendKeys  map[string]struct{}
	FrontendKeys map[string]struct{}
	EnvUsed      bool
}

// EffectiveConfigResult holds the result of LoadEffectiveConfig.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 1377
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "borda"
	}
	if c.Sync.PageSize == 0 {
		c.Sync.PageSize = 100
	}
	if c.Sync.ToleranceMs == 0 {
		c.Sync.ToleranceMs = 1
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(time.Second)
	}
	if c.Live.PingInterval == 0 {
		c.Live.PingInterval = Duration(30 * time.Second)
	}
	if c.Live.WriteTimeout == 0 {
		c.Live.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Live.ReconnectBackoff == 0 {
		c.Live.ReconnectBackoff = Duration(3 * time.Second)
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(time.Hour)
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = "0 3 * * *"
	}
	if c.Retention.Period == "" {
		c.Retention.Period = "720h"
	}
	if c.Client.DBPath == "" {
		c.Client.DBPath = "./.borda"
	}
	if c.Client.QueueSize == 0 {
		c.Client.QueueSize = 256
	}
	if c.Client.MaxBodySize == 0 {
		c.Client.MaxBodySize = 4 << 20
	}
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":1377", "HTTP listen address")
	dbPtr := flag.String("db", "./.borda", "Pebble DB path (client agent)")
	cfgPtr := flag.String("config", "./borda.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the BORDA_CONFIG environment variable when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("BORDA_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			empty := &Config{}
			empty.applyDefaults()
			return empty, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads environment variables into a fresh Config and
// returns that env-only config plus an EnvResult describing key sets and
// whether envs were used. It does not mutate any caller-provided config.
func ParseConfigEnvs() (*Config, EnvResult) {
	envCfg := &Config{}
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("BORDA_SERVER_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	}
	if v := os.Getenv("BORDA_MONGO_URI"); v != "" {
		envUsed = true
		envCfg.Mongo.URI = v
	}
	if v := os.Getenv("BORDA_MONGO_DATABASE"); v != "" {
		envUsed = true
		envCfg.Mongo.Database = v
	}
	if v := os.Getenv("BORDA_JWT_SECRET"); v != "" {
		envUsed = true
		envCfg.Security.JWTSecret = v
	}
	if v := os.Getenv("BORDA_API_BACKEND_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("BORDA_API_FRONTEND_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Frontend = parseList(v)
	}
	if v := os.Getenv("BORDA_CORS_ORIGINS"); v != "" {
		envUsed = true
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("BORDA_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("BORDA_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("BORDA_DB_PATH"); v != "" {
		envUsed = true
		envCfg.Client.DBPath = v
	}
	if v := os.Getenv("BORDA_SERVER_URL"); v != "" {
		envUsed = true
		envCfg.Client.ServerURL = v
	}
	if v := os.Getenv("BORDA_TOKEN"); v != "" {
		envUsed = true
		envCfg.Client.Token = v
	}
	if v := os.Getenv("BORDA_COLLECTIONS"); v != "" {
		envUsed = true
		envCfg.Client.Collections = parseList(v)
	}
	if c := os.Getenv("BORDA_TLS_CERT"); c != "" {
		envUsed = true
		envCfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("BORDA_TLS_KEY"); k != "" {
		envUsed = true
		envCfg.Server.TLS.KeyFile = k
	}

	backendKeys := make(map[string]struct{})
	for _, k := range envCfg.Security.APIKeys.Backend {
		backendKeys[k] = struct{}{}
	}
	frontendKeys := make(map[string]struct{})
	for _, k := range envCfg.Security.APIKeys.Frontend {
		frontendKeys[k] = struct{}{}
	}
	return envCfg, EnvResult{BackendKeys: backendKeys, FrontendKeys: frontendKeys, EnvUsed: envUsed}
}

// LoadEffectiveConfig decides which single source to use (flags, config
// file, or env). An explicit --config requires the file to exist and uses
// it exclusively; explicit addr/db flags win next; otherwise an existing
// config file is preferred, then env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Client.DBPath
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["db"] {
		addr := flags.Addr
		if !flags.Set["addr"] {
			addr = envCfg.Addr()
			if addr == "" {
				addr = fileCfg.Addr()
			}
		}
		dbPath := flags.DB
		if !flags.Set["db"] {
			if p := strings.TrimSpace(envCfg.Client.DBPath); p != "" {
				dbPath = p
			} else if p := strings.TrimSpace(fileCfg.Client.DBPath); p != "" {
				dbPath = p
			}
		}
		out := &Config{}
		out.Server.Address, out.Server.Port = splitAddr(addr)
		out.Client.DBPath = dbPath
		out.applyDefaults()
		res.Config = out
		res.Addr = addr
		res.DBPath = dbPath
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Client.DBPath
		res.Source = "config"
		return res, nil
	}
	envCfg.applyDefaults()
	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.DBPath = envCfg.Client.DBPath
	res.Source = "env"
	return res, nil
}

// splitAddr extracts host and port from a host:port string.
func splitAddr(a string) (string, int) {
	if a == "" {
		return "", 0
	}
	if h, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return h, pi
		}
		return h, 0
	}
	return a, 0
}
