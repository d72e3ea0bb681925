package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/archive"
	"github.com/courierdesk/courierdesk/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a folder as a zip archive",
		Long:  "Export a folder's manifests as a zip of JSON files plus a folder_info.json sidecar. Omit --folder to export unfiled manifests.",
		Run:   runExport,
	}

	cmd.Flags().String("folder", "", "Folder ID to export")
	cmd.Flags().StringP("out", "o", "", "Output path (default: <folder name>.zip)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	folderID, _ := cmd.Flags().GetString("folder")
	out, _ := cmd.Flags().GetString("out")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	folderName := "manifests"
	if folderID != "" {
		folder, err := s.GetFolder(cmd.Context(), folderID)
		if err != nil {
			exitErr("load folder", err)
		}
		folderName = folder.Name
	}

	manifests, err := s.List(cmd.Context(), store.ListParams{FolderID: folderID})
	if err != nil {
		exitErr("list manifests", err)
	}
	if len(manifests) == 0 {
		exitErr("export", fmt.Errorf("no manifests to export"))
	}

	if out == "" {
		out = folderName + ".zip"
	}
	f, err := os.Create(out)
	if err != nil {
		exitErr("create archive", err)
	}
	defer f.Close()

	if err := archive.WriteFolder(f, folderName, manifests); err != nil {
		exitErr("write archive", err)
	}
	fmt.Printf(`{"ok":true,"file":%q,"manifests":%d}`+"\n", out, len(manifests))
}
