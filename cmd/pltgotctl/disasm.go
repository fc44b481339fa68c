package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/arlobrandt/pltgot/internal/elfhook"
	"github.com/arlobrandt/pltgot/internal/ui/colorize"
)

func newDisasmCmd() *cobra.Command {
	var base string
	var path string
	var addr string
	var count int

	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Disassemble instructions at a GOT target",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseAddr, err := parseHexAddr(base)
			if err != nil {
				return fmt.Errorf("--base: %w", err)
			}
			target, err := parseHexAddr(addr)
			if err != nil {
				return fmt.Errorf("--addr: %w", err)
			}

			backend := elfhook.NewLiveBackend()
			view, err := elfhook.NewImageView(baseAddr, path, backend)
			if err != nil {
				return fmt.Errorf("parse image view: %w", err)
			}
			fmt.Println(colorize.Detail(fmt.Sprintf("%s (base 0x%x)", view.Pathname, view.BaseAddr)))

			pc := uint64(target)
			for i := 0; i < count; i++ {
				code, err := backend.ReadAt(uintptr(pc), 4)
				if err != nil {
					return fmt.Errorf("read at 0x%x: %w", pc, err)
				}
				fmt.Printf("%s  %s  %s\n", colorize.Address(pc), colorize.HexBytes(hexBytes(code)), colorize.Instruction(disasmOne(code)))
				pc += 4
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "base address the owning object is mapped at, hex (required)")
	cmd.Flags().StringVar(&path, "path", "", "path of the owning shared object (required)")
	cmd.Flags().StringVar(&addr, "addr", "", "address to disassemble from, hex (required)")
	cmd.Flags().IntVar(&count, "count", 8, "number of instructions to print")
	cmd.MarkFlagRequired("base")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("addr")

	return cmd
}

func hexBytes(code []byte) string {
	var b strings.Builder
	for i, c := range code {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}

func disasmOne(code []byte) string {
	if len(code) < 4 {
		return "???"
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return fmt.Sprintf(".word 0x%08x", uint32(code[0])|uint32(code[1])<<8|uint32(code[2])<<16|uint32(code[3])<<24)
	}
	return inst.String()
}
