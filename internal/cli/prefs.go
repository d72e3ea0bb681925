package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	prefsCmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change display preferences",
	}

	prefsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show display preferences",
		Run:   runPrefsShow,
	})

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change display preferences",
		Run:   runPrefsSet,
	}
	setCmd.Flags().String("theme", "", "Theme: light or dark")
	setCmd.Flags().Float64("scale", 0, "Display scale factor")
	prefsCmd.AddCommand(setCmd)

	RootCmd.AddCommand(prefsCmd)
}

func runPrefsShow(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := s.Preferences(cmd.Context())
	if err != nil {
		exitErr("load preferences", err)
	}
	printJSON(p)
}

func runPrefsSet(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := s.Preferences(cmd.Context())
	if err != nil {
		exitErr("load preferences", err)
	}

	if cmd.Flags().Changed("theme") {
		theme, _ := cmd.Flags().GetString("theme")
		if theme != "light" && theme != "dark" {
			exitErr("prefs set", fmt.Errorf("unknown theme %q", theme))
		}
		p.Theme = theme
	}
	if cmd.Flags().Changed("scale") {
		scale, _ := cmd.Flags().GetFloat64("scale")
		if scale <= 0 {
			exitErr("prefs set", fmt.Errorf("scale must be positive"))
		}
		p.Scale = scale
	}

	if err := s.SetPreferences(cmd.Context(), p); err != nil {
		exitErr("save preferences", err)
	}
	printJSON(p)
}
