package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifests",
		Long:  "List active manifests, newest first. Default scope is unfiled manifests; use --folder or --all.",
		Run:   runList,
	}

	cmd.Flags().String("folder", "", "Filter by folder ID")
	cmd.Flags().Bool("all", false, "Include manifests in every folder")
	cmd.Flags().IntP("limit", "l", 0, "Max results (0 = unlimited)")
	cmd.Flags().Bool("ids-only", false, "Only output manifest IDs and numbers")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	folderID, _ := cmd.Flags().GetString("folder")
	all, _ := cmd.Flags().GetBool("all")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	manifests, err := s.List(cmd.Context(), store.ListParams{
		FolderID: folderID,
		All:      all,
		Limit:    limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if idsOnly {
		for _, m := range manifests {
			fmt.Printf("%s\t%s\n", m.ID, m.ManifestNo)
		}
		return
	}
	printJSON(manifests)
}
