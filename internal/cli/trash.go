package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/store"
)

func init() {
	trashCmd := &cobra.Command{
		Use:   "trash",
		Short: "Manage the recycle bin",
	}

	trashCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List manifests in the recycle bin",
		Run:   runTrashList,
	})
	trashCmd.AddCommand(&cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a manifest from the recycle bin",
		Args:  cobra.ExactArgs(1),
		Run:   runTrashRestore,
	})
	trashCmd.AddCommand(&cobra.Command{
		Use:   "purge <id>",
		Short: "Permanently delete a manifest from the recycle bin",
		Args:  cobra.ExactArgs(1),
		Run:   runTrashPurge,
	})
	trashCmd.AddCommand(&cobra.Command{
		Use:   "empty",
		Short: "Permanently delete everything in the recycle bin",
		Run:   runTrashEmpty,
	})

	RootCmd.AddCommand(trashCmd)
}

func runTrashList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	manifests, err := s.ListRecycleBin(cmd.Context())
	if err != nil {
		exitErr("trash list", err)
	}
	printJSON(manifests)
}

func runTrashRestore(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = s.Restore(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotInRecycleBin) {
		exitErr("restore", fmt.Errorf("manifest %s is not in the recycle bin", args[0]))
	}
	if err != nil {
		exitErr("restore", err)
	}
	fmt.Printf(`{"ok":true,"id":%q}`+"\n", args[0])
}

func runTrashPurge(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = s.Purge(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotInRecycleBin) {
		exitErr("purge", fmt.Errorf("manifest %s is not in the recycle bin", args[0]))
	}
	if err != nil {
		exitErr("purge", err)
	}
	fmt.Printf(`{"ok":true,"id":%q}`+"\n", args[0])
}

func runTrashEmpty(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	n, err := s.EmptyRecycleBin(cmd.Context())
	if err != nil {
		exitErr("trash empty", err)
	}
	fmt.Printf(`{"ok":true,"purged":%d}`+"\n", n)
}
