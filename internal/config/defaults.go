package config

// Default configuration values.
const (
	DefaultNetwork           = "development"
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 7545
	DefaultSolcVersion       = "0.8.0"
	DefaultContractsBuildDir = "build/contracts"
	DefaultGas               = 500000
)

// DefaultNetworkConfig returns the local development node definition.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Host:      DefaultHost,
		Port:      DefaultPort,
		NetworkID: WildcardNetworkID,
		Gas:       DefaultGas,
	}
}

// Default returns the configuration used when no project file exists.
func Default() *ProjectConfig {
	return &ProjectConfig{
		Networks: map[string]NetworkConfig{
			DefaultNetwork: DefaultNetworkConfig(),
		},
		Compilers: CompilersConfig{
			Solc: SolcConfig{
				Version: DefaultSolcVersion,
				Settings: SolcSettings{
					Optimizer: OptimizerConfig{Runs: 200},
				},
			},
		},
		ContractsBuildDir: DefaultContractsBuildDir,
	}
}

// ApplyDefaults fills unset values. Networks are left alone when the
// file declares some; an empty network map gets the development network.
func (c *ProjectConfig) ApplyDefaults() {
	if c == nil {
		return
	}
	if c.ContractsBuildDir == "" {
		c.ContractsBuildDir = DefaultContractsBuildDir
	}
	if c.Compilers.Solc.Version == "" {
		c.Compilers.Solc.Version = DefaultSolcVersion
	}
	if len(c.Networks) == 0 {
		c.Networks = map[string]NetworkConfig{DefaultNetwork: DefaultNetworkConfig()}
		return
	}
	for name, n := range c.Networks {
		if n.Gas == 0 {
			n.Gas = DefaultGas
		}
		c.Networks[name] = n
	}
}
