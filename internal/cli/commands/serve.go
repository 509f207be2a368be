package commands

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/iotsdd/attendchain/internal/api"
	"github.com/iotsdd/attendchain/internal/artifact"
	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/chain"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		port    int
		address string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve attendance records over HTTP",
		Long: `Start the remote access API.

Users log in with an account from 'attendchain users' (the admin account
from api.admin_user / api.admin_password is created on start) and can then
count and list the records of the deployed AttendanceTracker. Listed
student ids are decrypted with the course keys in the keychain.

With --watch (or api.watch_artifacts) the build artifact is watched and
the contract is rebound whenever it is rewritten by a new migration.`,
		Example: `  # Serve on the configured port
  attendchain serve

  # Serve on port 8080 and follow re-deployments
  attendchain serve --port 8080 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			cfg := cmdCtx.Cfg
			apiCfg := cfg.GetAPIConfig()
			logger := cmdCtx.Logger
			ctx := cmd.Context()

			if cmd.Flags().Changed("port") {
				apiCfg.Port = port
			}
			if cmd.Flags().Changed("watch") {
				apiCfg.WatchArtifacts = watch
			}
			if address != "" && !common.IsHexAddress(address) {
				return fmt.Errorf("invalid contract address %q", address)
			}

			client, err := cmdCtx.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.Verify(ctx)
			if err != nil {
				return err
			}

			store, err := cmdCtx.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reload := func(context.Context) (api.Contract, error) {
				t, err := bindTracker(cmdCtx, client, info, address)
				if err != nil {
					return nil, err
				}
				return t, nil
			}

			srvCfg := api.Config{
				Store:          store,
				Port:           apiCfg.Port,
				SessionSecret:  apiCfg.SessionSecret,
				SessionMaxAge:  apiCfg.SessionMaxAge,
				RequestTimeout: apiCfg.RequestTimeout,
				AdminUser:      apiCfg.AdminUser,
				AdminPassword:  apiCfg.AdminPassword,
				Reload:         reload,
				Logger:         logger,
			}
			if apiCfg.WatchArtifacts {
				srvCfg.ArtifactPath = artifact.PathFor(cfg.ContractsBuildDir, attendance.ContractName)
			}

			if c, err := reload(ctx); err != nil {
				if !apiCfg.WatchArtifacts {
					return err
				}
				logger.Warn("contract not bound yet, waiting for the build artifact", "error", err)
			} else {
				srvCfg.Contract = c
			}

			srv, err := api.NewServer(srvCfg)
			if err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Serving on :%d (network %s)", apiCfg.Port, cfg.NetworkName))
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: api.port)")
	cmd.Flags().StringVar(&address, "address", "", "Contract address (default: from the build artifact)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Rebind the contract when the build artifact changes")

	return cmd
}

// bindTracker builds a read binding on an already verified connection,
// rereading the build artifact so a new deployment is picked up.
func bindTracker(cmdCtx *CommandContext, client *chain.Client, info *chain.NodeInfo, override string) (*attendance.Tracker, error) {
	a, err := cmdCtx.loadArtifact()
	if err != nil {
		if override == "" {
			return nil, err
		}
		contractABI, perr := attendance.ParseABI()
		if perr != nil {
			return nil, perr
		}
		return attendance.NewTracker(common.HexToAddress(override), contractABI, client.Caller(), cmdCtx.Logger), nil
	}
	if override != "" {
		return attendance.NewTracker(common.HexToAddress(override), a.ABI, client.Caller(), cmdCtx.Logger), nil
	}
	addr, err := a.Address(chain.DeployNetworkID(client.Network(), info))
	if err != nil {
		return nil, err
	}
	return attendance.NewTracker(addr, a.ABI, client.Caller(), cmdCtx.Logger), nil
}
