package config

import (
	"errors"
	"fmt"
	"os"
)

// Validate checks the project configuration and that the selected
// network is one of the configured networks.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ProjectConfig.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SelectedNetwork(); err != nil {
		errs = append(errs, fmt.Errorf("selected network: %w", err))
	}
	return errors.Join(errs...)
}

// SelectedNetwork returns the definition of the selected network.
func (c *Config) SelectedNetwork() (NetworkConfig, error) {
	return c.Network(c.NetworkName)
}

// ValidateBuildDir checks that the contracts build directory exists.
func (c *Config) ValidateBuildDir() error {
	if _, err := os.Stat(c.ContractsBuildDir); os.IsNotExist(err) {
		return fmt.Errorf("contracts build directory does not exist: %s\nHint: compile and migrate the contracts or use --build-dir to specify a different path", c.ContractsBuildDir)
	}
	return nil
}
