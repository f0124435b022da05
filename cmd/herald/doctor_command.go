package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"herald/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, media tools, and platform credentials",
		Long: "Run the daemon's preflight checks, then call each enabled platform's\n" +
			"identity endpoint to confirm the configured token works. Use --offline\n" +
			"to skip the network checks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			local := preflight.RunAll(cmd.Context(), cfg)
			var remote []preflight.Result
			if !offline {
				remote = preflight.CheckPlatforms(cmd.Context(), cfg)
			}

			if jsonOutput {
				if err := writeJSON(cmd, map[string][]preflight.Result{"local": local, "platforms": remote}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				v := newStatusView(shouldColorize(out))
				v.section("Local")
				v.checks(local)
				if !offline {
					v.section("Platforms")
					if len(remote) == 0 {
						v.add("Platforms", levelWarn, "none enabled")
					}
					v.checks(remote)
				}
				if err := v.writeTo(out); err != nil {
					return err
				}
			}

			failed := len(preflight.Failed(local)) + len(preflight.Failed(remote))
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip platform API checks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
