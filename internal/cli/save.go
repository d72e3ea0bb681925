package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "save <id> <file.json>",
		Short: "Replace a manifest's rows and metadata",
		Long: "Replace a manifest's row set from a JSON payload, re-deriving rates and " +
			"totals under the manifest's own rate config (or the payload's, when it " +
			"carries one). The record keeps its identity and place in history.",
		Args: cobra.ExactArgs(2),
		Run:  runSave,
	}

	RootCmd.AddCommand(cmd)
}

func runSave(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[1])
	if err != nil {
		exitErr("read file", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	existing, err := s.Get(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		exitErr("save", fmt.Errorf("no manifest with id %s", args[0]))
	}
	if err != nil {
		exitErr("save", err)
	}

	updated, err := newReconciler(s).DecodeUpdate(data, existing)
	if err != nil {
		exitErr(fmt.Sprintf("decode %s", filepath.Base(args[1])), err)
	}

	if err := s.Replace(cmd.Context(), existing.ID, updated); err != nil {
		exitErr("save", err)
	}
	printJSON(updated)
}
