package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	sharedcfg "github.com/iotsdd/attendchain/internal/config"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// projectRoot resolves the directory relative paths are anchored to: the
// --project-dir flag, else the directory of an explicit config file, else
// the nearest ancestor of the working directory holding attendchain.yaml,
// else the working directory itself.
func projectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Lookup("project-dir") != nil && flags.Changed("project-dir") {
		if dir, _ := flags.GetString("project-dir"); dir != "" {
			return absOrClean(dir)
		}
	}
	if cfgFile != "" {
		return filepath.Dir(absOrClean(cfgFile))
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := sharedcfg.FindProjectRoot(cwd); root != "" {
		return root
	}
	return cwd
}

func absOrClean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// anchor joins a relative path onto root. Empty, in-memory and absolute
// paths are returned as they are.
func anchor(path, root string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// envKey maps ATTENDCHAIN_NETWORKS__DEVELOPMENT__PORT to networks.development.port.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// flagKeys bridges CLI flag names to config keys where they differ.
var flagKeys = map[string]string{
	"state":     "state_path",
	"build-dir": "contracts_build_dir",
}

// defaults returns the built-in layer. Without a project file the
// shipped development network is part of it, so env vars and flags can
// override single fields of that network.
func defaults(withNetwork bool) map[string]interface{} {
	m := map[string]interface{}{
		"network":                                DefaultNetwork,
		"state_path":                             DefaultStateFile,
		"verbose":                                false,
		"output":                                 DefaultOutput,
		"contracts_build_dir":                    sharedcfg.DefaultContractsBuildDir,
		"compilers.solc.version":                 sharedcfg.DefaultSolcVersion,
		"compilers.solc.settings.optimizer.runs": 200,
		"api.port":                               DefaultAPIPort,
		"api.session_max_age":                    DefaultSessionMaxAge.String(),
		"api.admin_user":                         DefaultAdminUser,
		"api.request_timeout":                    DefaultRequestTimeout.String(),
		"api.watch_artifacts":                    false,
	}
	if withNetwork {
		n := sharedcfg.DefaultNetworkConfig()
		prefix := "networks." + sharedcfg.DefaultNetwork + "."
		m[prefix+"host"] = n.Host
		m[prefix+"port"] = n.Port
		m[prefix+"network_id"] = string(n.NetworkID)
		m[prefix+"gas"] = n.Gas
	}
	return m
}

// loadDotenv exports the variables of root/.env that are not already set.
func loadDotenv(root string) error {
	path := filepath.Join(root, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	return nil
}

// flagProvider exposes the changed flags under their config keys.
// Flags that only steer loading are left out.
func flagProvider(flags *pflag.FlagSet) koanf.Provider {
	return posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if !f.Changed || f.Name == "config" || f.Name == "project-dir" {
			return "", nil
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		return key, posflag.FlagVal(flags, f)
	})
}

// LoadConfig layers defaults, the project file, .env, ATTENDCHAIN_
// variables and changed flags, later layers winning. The result is not
// validated.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	root := projectRoot(cfgFile, flags)

	if cfgFile == "" {
		cfgFile = sharedcfg.FindConfigFile(root)
	}
	configFileUsed = cfgFile

	if err := k.Load(confmap.Provider(defaults(cfgFile == ""), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := loadDotenv(root); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if flags != nil {
		if err := k.Load(flagProvider(flags), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag:           "koanf",
		DecoderConfig: sharedcfg.DecoderConfig(&cfg),
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	finish(&cfg, root)

	currentConfig = &cfg
	return &cfg, nil
}

// finish fills derived fields once all layers are merged.
func finish(cfg *Config, root string) {
	cfg.ProjectRoot = root
	cfg.ProjectConfig.ApplyDefaults()
	cfg.API = cfg.GetAPIConfig()

	cfg.StatePath = anchor(cfg.StatePath, root)
	cfg.ContractsBuildDir = anchor(cfg.ContractsBuildDir, root)

	for name, n := range cfg.Networks {
		n.Host = expandEnvVars(n.Host)
		n.From = expandEnvVars(n.From)
		cfg.Networks[name] = n
	}
	cfg.API.SessionSecret = expandEnvVars(cfg.API.SessionSecret)
	cfg.API.AdminPassword = expandEnvVars(cfg.API.AdminPassword)
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}
