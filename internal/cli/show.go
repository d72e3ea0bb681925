package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/store"
	"github.com/courierdesk/courierdesk/internal/tariff"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a manifest",
		Args:  cobra.ExactArgs(1),
		Run:   runShow,
	}

	cmd.Flags().Bool("summary", false, "Include the weight and rate summary")

	RootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) {
	withSummary, _ := cmd.Flags().GetBool("summary")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.Get(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		exitErr("show", fmt.Errorf("no manifest with id %s", args[0]))
	}
	if err != nil {
		exitErr("show", err)
	}

	if !withSummary {
		printJSON(m)
		return
	}
	printJSON(struct {
		Manifest interface{}    `json:"manifest"`
		Summary  tariff.Summary `json:"summary"`
	}{Manifest: m, Summary: tariff.Summarize(m.Rows, m.Config)})
}
