package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrNetworkNotFound is matched by UnknownNetworkError.
var ErrNetworkNotFound = errors.New("network not found")

// MaxPort is the highest valid TCP port.
const MaxPort = 65535

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field found in a config.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid configuration (%d problem(s)):\n  %s", len(e), strings.Join(msgs, "\n  "))
}

// Unwrap exposes the individual errors to errors.As.
func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, ve := range e {
		errs[i] = ve
	}
	return errs
}

var (
	hostnameLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	hexAddress    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	allDigits     = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateHost checks host is an IP literal or an RFC 1123 hostname.
func ValidateHost(host string) error {
	if host == "" {
		return errors.New("host is required")
	}
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return nil
	}
	if len(host) > 253 {
		return fmt.Errorf("host %q is longer than 253 characters", host)
	}
	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	for _, label := range labels {
		if !hostnameLabel.MatchString(label) {
			return fmt.Errorf("host %q is not a valid IP address or hostname", host)
		}
	}
	// An all-numeric top label is a malformed IP, not a hostname.
	if allDigits.MatchString(labels[len(labels)-1]) {
		return fmt.Errorf("host %q is not a valid IP address or hostname", host)
	}
	return nil
}

// ValidatePort checks port is within 1..65535.
func ValidatePort(port int) error {
	if port < 1 || port > MaxPort {
		return fmt.Errorf("port %d is outside the valid range 1-%d", port, MaxPort)
	}
	return nil
}

// ValidateSemver checks version is a full MAJOR.MINOR.PATCH semantic
// version with optional pre-release and build metadata.
func ValidateSemver(version string) error {
	if version == "" {
		return errors.New("version is required")
	}
	v := "v" + version
	if strings.HasPrefix(version, "v") || !semver.IsValid(v) {
		return fmt.Errorf("%q is not a semantic version (expected MAJOR.MINOR.PATCH)", version)
	}
	withoutBuild, _, _ := strings.Cut(v, "+")
	if semver.Canonical(v) != withoutBuild {
		return fmt.Errorf("%q is not a semantic version (expected MAJOR.MINOR.PATCH)", version)
	}
	return nil
}

// Validate checks a single network definition. Field paths are prefixed
// with networks.<name>.
func (n NetworkConfig) Validate(name string) ValidationErrors {
	var errs ValidationErrors
	prefix := "networks." + name + "."
	if err := ValidateHost(n.Host); err != nil {
		errs = append(errs, &ValidationError{Field: prefix + "host", Message: err.Error()})
	}
	if err := ValidatePort(n.Port); err != nil {
		errs = append(errs, &ValidationError{Field: prefix + "port", Message: err.Error()})
	}
	if err := n.NetworkID.Validate(); err != nil {
		errs = append(errs, &ValidationError{Field: prefix + "network_id", Message: err.Error()})
	}
	if n.From != "" && !hexAddress.MatchString(n.From) {
		errs = append(errs, &ValidationError{Field: prefix + "from", Message: fmt.Sprintf("%q is not a hex account address", n.From)})
	}
	return errs
}

// Validate checks the whole configuration and reports every problem.
// It returns nil when the configuration is valid.
func (c *ProjectConfig) Validate() error {
	var errs ValidationErrors

	if len(c.Networks) == 0 {
		errs = append(errs, &ValidationError{Field: "networks", Message: "at least one network is required"})
	}
	for _, name := range c.NetworkNames() {
		errs = append(errs, c.Networks[name].Validate(name)...)
	}

	if err := ValidateSemver(c.Compilers.Solc.Version); err != nil {
		errs = append(errs, &ValidationError{Field: "compilers.solc.version", Message: err.Error()})
	}
	if c.Compilers.Solc.Settings.Optimizer.Runs < 0 {
		errs = append(errs, &ValidationError{Field: "compilers.solc.settings.optimizer.runs", Message: "runs must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
