// Command pltgotctl inspects and hooks PLT/GOT entries of ELF shared
// objects loaded into the current process.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arlobrandt/pltgot/internal/pltlog"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pltgotctl",
		Short: "Inspect and hook PLT/GOT entries of loaded ELF shared objects",
		Long: `pltgotctl parses the ELF Image View of a loaded shared object — its
dynamic symbol table, hash table, and PLT/GOT relocation regions — and can
rewrite a resolved GOT slot in place to redirect a call site to a
replacement function, without recompiling or relinking the target.

Examples:
  pltgotctl inspect --base 0x7f0000000000 --path /lib/libfoo.so
  pltgotctl hash --base 0x7f0000000000 --path /lib/libfoo.so --symbol malloc
  pltgotctl hook --pattern 'libfoo*.so' --symbol malloc --addr 0x401000
  pltgotctl list
  pltgotctl watch`,
		DisableFlagsInUseLine: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			pltlog.Init(verbose && !quiet)
			if quiet {
				pltlog.L.Logger = pltlog.L.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (errors only)")

	rootCmd.AddCommand(
		newInspectCmd(),
		newHashCmd(),
		newHookCmd(),
		newListCmd(),
		newWatchCmd(),
		newDisasmCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
