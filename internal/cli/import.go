package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/parser"
	"github.com/courierdesk/courierdesk/internal/reconcile"
	"github.com/courierdesk/courierdesk/internal/store"
	"github.com/courierdesk/courierdesk/internal/tariff"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import <file.json | image...>",
		Short: "Import a manifest from a JSON file or scanned pages",
		Long: "Import a manifest. A JSON payload is re-priced under the stored rate " +
			"config (or the payload's own config when it carries one). Image files are " +
			"sent to the extraction service as pages of one manifest. When an active " +
			"manifest with the same number exists, resolve with --on-conflict.",
		Args: cobra.MinimumNArgs(1),
		Run:  runImport,
	}

	cmd.Flags().String("on-conflict", "", "Conflict resolution: keep_both, override or discard")
	cmd.Flags().String("folder", "", "Assign the imported manifest to this folder ID")
	cmd.Flags().Bool("hybrid", false, "Use the hybrid extraction strategy for images")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	onConflict, _ := cmd.Flags().GetString("on-conflict")
	folderID, _ := cmd.Flags().GetString("folder")
	hybrid, _ := cmd.Flags().GetBool("hybrid")

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

	var candidate *model.Manifest
	if strings.EqualFold(filepath.Ext(args[0]), ".json") {
		if len(args) != 1 {
			exitErr("import", fmt.Errorf("JSON import takes exactly one file"))
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			exitErr("read file", err)
		}
		candidate, err = r.Decode(data, "IMP", cfg)
		if err != nil {
			exitErr(fmt.Sprintf("decode %s", filepath.Base(args[0])), err)
		}
	} else {
		candidate = scanPages(cmd, s, args, cfg, hybrid)
	}
	candidate.FolderID = folderID

	existing, err := r.FindConflict(cmd.Context(), candidate)
	if err != nil {
		exitErr("check conflict", err)
	}

	if existing == nil {
		if err := r.Import(cmd.Context(), candidate); err != nil {
			exitErr("import", err)
		}
		printJSON(candidate)
		return
	}

	if onConflict == "" {
		fmt.Fprintf(os.Stderr, "manifest %q already exists (id %s, total %.2f)\n",
			existing.ManifestNo, existing.ID, existing.TotalAmount)
		fmt.Fprintln(os.Stderr, "re-run with --on-conflict keep_both, override or discard")
		os.Exit(1)
	}

	action, err := reconcile.ParseAction(onConflict)
	if err != nil {
		exitErr("import", err)
	}
	imported, err := r.Resolve(cmd.Context(), action, reconcile.Conflict{Existing: existing, Candidate: candidate})
	if err != nil {
		exitErr("resolve conflict", err)
	}
	if imported == nil {
		fmt.Println(`{"ok":true,"action":"discard"}`)
		return
	}
	printJSON(imported)
}

// scanPages runs image files through the extraction service as pages of a
// single manifest and prices the result under the given config.
func scanPages(cmd *cobra.Command, s *store.SQLiteStore, paths []string, cfg model.RateConfig, hybrid bool) *model.Manifest {
	client, err := parser.NewClientFromEnv()
	if err != nil {
		exitErr("configure extraction service", err)
	}

	pages := make([]model.Page, 0, len(paths))
	for _, path := range paths {
		page, err := loadPage(path)
		if err != nil {
			exitErr("read page", err)
		}
		pages = append(pages, page)
	}

	instruction := parser.InstructionSingle
	if len(pages) > 1 {
		instruction = parser.InstructionPages
	}
	result, err := client.Parse(cmd.Context(), pages, instruction, hybrid, nil)
	if err != nil {
		exitErr("extract", err)
	}

	rows, total := tariff.ComputeRows(result.Rows(s.NewID, "Item"), cfg)
	return &model.Manifest{
		ManifestNo:   result.ManifestNoOr("MF"),
		ManifestDate: result.ManifestDateOr(),
		Rows:         rows,
		Config:       cfg,
		TotalAmount:  total,
		ItemCount:    len(rows),
	}
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
