package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/cli/output"
)

// NetworkOutput is the JSON output for one configured network.
type NetworkOutput struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	NetworkID string `json:"network_id"`
	Endpoint  string `json:"endpoint"`
	Selected  bool   `json:"selected"`
}

// NewNetworksCommand creates the networks command.
func NewNetworksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the configured networks",
		Long: `List the networks defined in attendchain.yaml.

The selected network (--network, default development) is marked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			cfg := cmdCtx.Cfg
			r := cmdCtx.Renderer

			networks := make([]NetworkOutput, 0, len(cfg.Networks))
			for _, name := range cfg.NetworkNames() {
				n := cfg.Networks[name]
				networks = append(networks, NetworkOutput{
					Name:      name,
					Host:      n.Host,
					Port:      n.Port,
					NetworkID: n.NetworkID.String(),
					Endpoint:  n.Endpoint(),
					Selected:  name == cfg.NetworkName,
				})
			}

			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(networks)
			}

			rows := make([][]string, 0, len(networks))
			for _, n := range networks {
				mark := ""
				if n.Selected {
					mark = "*"
				}
				rows = append(rows, []string{mark, n.Name, n.Host, strconv.Itoa(n.Port), n.NetworkID})
			}
			r.Header(2, "Networks")
			r.Table([]string{"", "Name", "Host", "Port", "Network ID"}, rows)
			return nil
		},
	}
}
