package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/sofmeright/distrobaker/src/config"
	"github.com/sofmeright/distrobaker/src/contentresolver"
	"github.com/sofmeright/distrobaker/src/output"
)

var configOffline bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a distrobaker.yaml file and list the derived components",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigCheck,
}

func init() {
	configCheckCmd.Flags().BoolVar(&configOffline, "offline", false, "do not query the Content Resolver for the automatic package list")

	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, warnings, err := config.Load(args[0])
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}
	if err != nil {
		return err
	}

	var auto []string
	if apl := cfg.Control.AutoPackageList; cfg.Components == nil && apl != nil && !configOffline {
		auto, err = contentresolver.New(60, logger).Packages(cmd.Context(), apl.ContentResolver, apl.View, nil, nil)
		if err != nil {
			return fmt.Errorf("fetching automatic package list: %w", err)
		}
	}

	comps, err := config.DeriveComponents(cfg, auto)
	if err != nil {
		return err
	}

	mode := "non-strict"
	if cfg.Control.IsStrict() {
		mode = "strict"
	}
	w := cmd.OutOrStdout()
	output.ContextBlock(w, []output.KV{
		{Key: "file", Value: args[0]},
		{Key: "trigger", Value: cfg.Trigger.RPMs},
		{Key: "target", Value: cfg.Build.Target},
		{Key: "scratch", Value: strconv.FormatBool(cfg.Build.IsScratch())},
		{Key: "mode", Value: mode},
	})
	output.Components(w, cfg, comps, output.UseColor())
	return nil
}
