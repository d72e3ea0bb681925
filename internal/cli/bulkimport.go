package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/archive"
	"github.com/courierdesk/courierdesk/internal/reconcile"
)

func init() {
	cmd := &cobra.Command{
		Use:   "bulk-import [files...]",
		Short: "Import many manifest files at once",
		Long: "Import up to 30 manifest JSON files, or a whole exported folder archive " +
			"with --zip. Each file succeeds or fails on its own; nothing is stored " +
			"unless at least one file imports cleanly.",
		Run: runBulkImport,
	}

	cmd.Flags().String("zip", "", "Import a folder archive instead of loose files")
	cmd.Flags().String("folder", "", "Assign imported manifests to this folder ID (ignored with --zip)")

	RootCmd.AddCommand(cmd)
}

func runBulkImport(cmd *cobra.Command, args []string) {
	zipPath, _ := cmd.Flags().GetString("zip")
	folderID, _ := cmd.Flags().GetString("folder")

	if zipPath == "" && len(args) == 0 {
		exitErr("bulk-import", fmt.Errorf("nothing to import: pass files or --zip"))
	}
	if zipPath != "" && len(args) > 0 {
		exitErr("bulk-import", fmt.Errorf("pass either files or --zip, not both"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	cfg, err := s.RateConfig(cmd.Context())
	if err != nil {
		exitErr("load rate config", err)
	}
	r := newReconciler(s)

	var (
		outcomes  []reconcile.Outcome
		committed int
	)
	if zipPath != "" {
		data, err := os.ReadFile(zipPath)
		if err != nil {
			exitErr("read archive", err)
		}
		arc, err := archive.Read(data, filepath.Base(zipPath))
		if err != nil {
			exitErr("read archive", err)
		}
		outcomes, committed, _, err = r.BulkImportToFolder(cmd.Context(), s, arc.FolderName, arc.Files, cfg)
		if err != nil {
			exitErr("bulk-import", err)
		}
	} else {
		var items []reconcile.FileItem
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				exitErr("read file", err)
			}
			items = append(items, reconcile.FileItem{Name: filepath.Base(path), Data: data})
		}
		outcomes, committed, err = r.BulkImport(cmd.Context(), items, folderID, cfg)
		if err != nil {
			exitErr("bulk-import", err)
		}
	}

	printJSON(struct {
		Imported int                 `json:"imported"`
		Outcomes []reconcile.Outcome `json:"outcomes"`
	}{Imported: committed, Outcomes: outcomes})
}
