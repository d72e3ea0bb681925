package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/store"
)

func init() {
	folderCmd := &cobra.Command{
		Use:   "folder",
		Short: "Organize manifests into folders",
	}

	folderCmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		Run:   runFolderCreate,
	})
	folderCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List folders",
		Run:   runFolderList,
	})
	folderCmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a folder, keeping its manifests",
		Long:  "Delete a folder. Its manifests are kept and become unfiled.",
		Args:  cobra.ExactArgs(1),
		Run:   runFolderDelete,
	})
	folderCmd.AddCommand(&cobra.Command{
		Use:   "move <manifest-id> [folder-id]",
		Short: "Move a manifest into a folder, or unfile it",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runFolderMove,
	})

	RootCmd.AddCommand(folderCmd)
}

func runFolderCreate(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	folder, err := s.AddFolder(cmd.Context(), args[0])
	if err != nil {
		exitErr("create folder", err)
	}
	printJSON(folder)
}

func runFolderList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	folders, err := s.ListFolders(cmd.Context())
	if err != nil {
		exitErr("list folders", err)
	}
	printJSON(folders)
}

func runFolderDelete(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = s.DeleteFolder(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		exitErr("delete folder", fmt.Errorf("no folder with id %s", args[0]))
	}
	if err != nil {
		exitErr("delete folder", err)
	}
	fmt.Printf(`{"ok":true,"id":%q}`+"\n", args[0])
}

func runFolderMove(cmd *cobra.Command, args []string) {
	var folderID string
	if len(args) == 2 {
		folderID = args[1]
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = s.MoveToFolder(cmd.Context(), args[0], folderID)
	if errors.Is(err, store.ErrNotFound) {
		exitErr("move", fmt.Errorf("no active manifest with id %s", args[0]))
	}
	if err != nil {
		exitErr("move", err)
	}
	fmt.Printf(`{"ok":true,"id":%q,"folder":%q}`+"\n", args[0], folderID)
}
