package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arlobrandt/pltgot/internal/elfhook"
)

func newHashCmd() *cobra.Command {
	var base string
	var path string
	var symbol string

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Look up a symbol via the image's classic or GNU hash table",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseAddr, err := parseHexAddr(base)
			if err != nil {
				return fmt.Errorf("--base: %w", err)
			}

			view, err := elfhook.NewImageView(baseAddr, path, elfhook.NewLiveBackend())
			if err != nil {
				return fmt.Errorf("parse image view: %w", err)
			}

			idx, err := view.FindSymbolIndex(symbol)
			if err != nil {
				return fmt.Errorf("find symbol %q: %w", symbol, err)
			}

			fmt.Printf("Symbol:    %s\n", symbol)
			fmt.Printf("Index:     %d\n", idx)
			fmt.Printf("Hash path: %s\n", hashKindOf(view))
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "base address the object is mapped at, hex (required)")
	cmd.Flags().StringVar(&path, "path", "", "path of the shared object (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol name to resolve (required)")
	cmd.MarkFlagRequired("base")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("symbol")

	return cmd
}
