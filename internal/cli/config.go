package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the global rate config",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the global rate config",
		Run:   runConfigShow,
	})

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change global rates",
		Long:  "Change global rates. Only the flags you pass are changed; stored manifests keep the config they were priced under.",
		Run:   runConfigSet,
	}
	setCmd.Flags().Float64("slab1", 0, "Per-kg rate for the first 10 kg")
	setCmd.Flags().Float64("slab2", 0, "Per-kg rate from 10 to 100 kg")
	setCmd.Flags().Float64("slab3", 0, "Per-kg rate above 100 kg")
	setCmd.Flags().Float64("document", 0, "Flat rate per document")
	configCmd.AddCommand(setCmd)

	RootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	cfg, err := s.RateConfig(cmd.Context())
	if err != nil {
		exitErr("load rate config", err)
	}
	printJSON(cfg)
}

func runConfigSet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	cfg, err := s.RateConfig(cmd.Context())
	if err != nil {
		exitErr("load rate config", err)
	}

	if cmd.Flags().Changed("slab1") {
		cfg.Slab1Rate, _ = cmd.Flags().GetFloat64("slab1")
	}
	if cmd.Flags().Changed("slab2") {
		cfg.Slab2Rate, _ = cmd.Flags().GetFloat64("slab2")
	}
	if cmd.Flags().Changed("slab3") {
		cfg.Slab3Rate, _ = cmd.Flags().GetFloat64("slab3")
	}
	if cmd.Flags().Changed("document") {
		cfg.DocumentRate, _ = cmd.Flags().GetFloat64("document")
	}

	if err := s.SetRateConfig(cmd.Context(), cfg); err != nil {
		exitErr("save rate config", err)
	}
	printJSON(cfg)
}
