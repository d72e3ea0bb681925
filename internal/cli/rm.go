package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Move a manifest to the recycle bin",
		Long:  "Move a manifest to the recycle bin. Restore or purge it with the trash command.",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = s.SoftDelete(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		exitErr("rm", fmt.Errorf("no active manifest with id %s", args[0]))
	}
	if err != nil {
		exitErr("rm", err)
	}
	fmt.Printf(`{"ok":true,"id":%q}`+"\n", args[0])
}
