package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arlobrandt/pltgot/internal/elfhook"
)

func newInspectCmd() *cobra.Command {
	var base string
	var path string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Parse and print an ELF Image View",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseAddr, err := parseHexAddr(base)
			if err != nil {
				return fmt.Errorf("--base: %w", err)
			}

			view, err := elfhook.NewImageView(baseAddr, path, elfhook.NewLiveBackend())
			if err != nil {
				return fmt.Errorf("parse image view: %w", err)
			}

			fmt.Printf("Path:            %s\n", view.Pathname)
			fmt.Printf("Base:            0x%x\n", view.BaseAddr)
			fmt.Printf("Bias:            0x%x\n", view.BiasAddr)
			fmt.Printf("Segments:        %d\n", len(view.Phdr))
			fmt.Printf("Hash table:      %s\n", hashKindOf(view))
			fmt.Printf("Uses RELA:       %v\n", view.IsUseRela)
			fmt.Printf("RelPLT size:     %d\n", view.RelPLTSz)
			fmt.Printf("RelDyn size:     %d\n", view.RelDynSz)
			fmt.Printf("RelAndroid size: %d\n", view.RelAndroidSz)
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "base address the object is mapped at, hex (required)")
	cmd.Flags().StringVar(&path, "path", "", "path of the shared object (required)")
	cmd.MarkFlagRequired("base")
	cmd.MarkFlagRequired("path")

	return cmd
}

func hashKindOf(view *elfhook.ImageView) string {
	if view.IsUseGNUHash {
		return "gnu"
	}
	return "classic"
}

// parseHexAddr parses an address given with or without a 0x prefix.
func parseHexAddr(s string) (uintptr, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad hex address %q: %w", s, err)
	}
	return uintptr(v), nil
}
