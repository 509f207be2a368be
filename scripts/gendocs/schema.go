package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	cliconfig "github.com/iotsdd/attendchain/internal/cli/config"
	"github.com/iotsdd/attendchain/internal/config"
)

// generateSchemaDocs generates the configuration reference.
func generateSchemaDocs(outDir string) error {
	log.Printf("Generating schema docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := generateConfigurationDoc(outDir); err != nil {
		return fmt.Errorf("failed to generate configuration.md: %w", err)
	}
	log.Printf("  Generated configuration.md")

	return nil
}

// ConfigField represents a configuration field definition.
type ConfigField struct {
	Name        string
	Type        string
	Default     string
	Description string
	Category    string // "project", "network", "api"
}

// getConfigSchema returns the configuration schema definition.
// Defaults are taken from the config packages so the page cannot drift.
func getConfigSchema() []ConfigField {
	api := cliconfig.DefaultAPIConfig()
	return []ConfigField{
		{Name: "compilers.solc.version", Type: "string", Default: config.DefaultSolcVersion, Description: "Pinned solc release (MAJOR.MINOR.PATCH)", Category: "project"},
		{Name: "compilers.solc.settings.optimizer.enabled", Type: "bool", Default: "false", Description: "Enable the solc optimizer", Category: "project"},
		{Name: "compilers.solc.settings.optimizer.runs", Type: "int", Default: "200", Description: "Optimizer runs", Category: "project"},
		{Name: "contracts_build_dir", Type: "string", Default: config.DefaultContractsBuildDir, Description: "Directory holding the contract build artifacts", Category: "project"},
		{Name: "network", Type: "string", Default: cliconfig.DefaultNetwork, Description: "Network used by commands", Category: "project"},
		{Name: "state_path", Type: "string", Default: cliconfig.DefaultStateFile, Description: "Keychain and user database", Category: "project"},

		{Name: "host", Type: "string", Default: config.DefaultHost, Description: "IP address or hostname of the node", Category: "network"},
		{Name: "port", Type: "int", Default: strconv.Itoa(config.DefaultPort), Description: "JSON-RPC port, 1..65535", Category: "network"},
		{Name: "network_id", Type: "string", Default: string(config.WildcardNetworkID), Description: `Expected network id, or "*" for any`, Category: "network"},
		{Name: "from", Type: "string", Description: "Sender account (default: first node account)", Category: "network"},
		{Name: "gas", Type: "int", Default: strconv.Itoa(config.DefaultGas), Description: "Gas limit for transactions", Category: "network"},
		{Name: "websockets", Type: "bool", Default: "false", Description: "Connect over ws:// instead of http://", Category: "network"},

		{Name: "api.port", Type: "int", Default: strconv.Itoa(api.Port), Description: "API listen port", Category: "api"},
		{Name: "api.session_secret", Type: "string", Description: "Cookie signing key (random per start when empty)", Category: "api"},
		{Name: "api.session_max_age", Type: "duration", Default: api.SessionMaxAge.String(), Description: "Session lifetime", Category: "api"},
		{Name: "api.admin_user", Type: "string", Default: api.AdminUser, Description: "Account created on start", Category: "api"},
		{Name: "api.admin_password", Type: "string", Description: "Password of admin_user; no account is created when empty", Category: "api"},
		{Name: "api.request_timeout", Type: "duration", Default: api.RequestTimeout.String(), Description: "Upper bound of a request", Category: "api"},
		{Name: "api.watch_artifacts", Type: "bool", Default: "false", Description: "Rebind the contract when the build artifact changes", Category: "api"},
	}
}

// generateConfigurationDoc generates the configuration reference page.
func generateConfigurationDoc(outDir string) error {
	w := NewMarkdownWriter()

	w.Frontmatter("Configuration", "attendchain configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("attendchain is configured via `attendchain.yaml` in your project root.")

	fields := getConfigSchema()

	w.Header(2, "Project Settings")
	writeFieldTable(w, fields, "project")

	w.Header(2, "Networks")
	w.Paragraph("Networks are defined under the `networks` key, one entry per name.")
	writeFieldTable(w, fields, "network")
	w.CodeBlock("yaml", `networks:
  development:
    host: 127.0.0.1
    port: 7545
    network_id: "*"
compilers:
  solc:
    version: "0.8.0"`)

	w.Header(2, "API Server")
	writeFieldTable(w, fields, "api")

	filename := filepath.Join(outDir, "configuration.md")
	return os.WriteFile(filename, w.Bytes(), 0600)
}

func writeFieldTable(w *MarkdownWriter, fields []ConfigField, category string) {
	headers := []string{"Field", "Type", "Default", "Description"}
	var rows [][]string
	for _, f := range fields {
		if f.Category != category {
			continue
		}
		defVal := "-"
		if f.Default != "" {
			defVal = InlineCode(f.Default)
		}
		rows = append(rows, []string{InlineCode(f.Name), f.Type, defVal, f.Description})
	}
	w.Table(headers, rows)
}
