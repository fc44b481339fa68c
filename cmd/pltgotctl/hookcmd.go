package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arlobrandt/pltgot/internal/config"
	"github.com/arlobrandt/pltgot/internal/registry"
)

func newHookCmd() *cobra.Command {
	var pattern string
	var symbol string
	var addr string
	var rulesPath string
	var script string

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Register a hook through the process-local registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := sharedManager()

			if script != "" {
				predicate, err := registry.CompileScript(script)
				if err != nil {
					return fmt.Errorf("compile --script: %w", err)
				}
				mgr.SetScript(predicate)
			}

			var requests []config.Rule
			if rulesPath != "" {
				rules, err := config.LoadRules(rulesPath)
				if err != nil {
					return fmt.Errorf("load --rules: %w", err)
				}
				requests = rules
			} else {
				if pattern == "" || symbol == "" || addr == "" {
					return fmt.Errorf("either --rules, or all of --pattern/--symbol/--addr, are required")
				}
				newAddr, err := parseHexAddr(addr)
				if err != nil {
					return fmt.Errorf("--addr: %w", err)
				}
				requests = []config.Rule{{Pattern: pattern, Symbol: symbol, Addr: newAddr}}
			}

			ctx := context.Background()
			installedAt := time.Now().Format(time.RFC3339)
			var total int
			for _, r := range requests {
				hooks, err := mgr.Hook(ctx, r.Pattern, r.Symbol, r.Addr, installedAt)
				if err != nil {
					return fmt.Errorf("hook %s/%s: %w", r.Pattern, r.Symbol, err)
				}
				for _, h := range hooks {
					fmt.Printf("hooked %s (%s) in %s: 0x%x -> 0x%x\n", h.Symbol, h.Pattern, h.Path, h.OldAddr, h.NewAddr)
				}
				total += len(hooks)
			}
			if total == 0 {
				fmt.Println("no loaded object matched any request")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "shared object name glob, e.g. 'libfoo*.so'")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to redirect")
	cmd.Flags().StringVar(&addr, "addr", "", "replacement address, hex")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML file of batch hook requests (overrides --pattern/--symbol/--addr)")
	cmd.Flags().StringVar(&script, "script", "", "JavaScript snippet defining match(path) to further filter candidates")

	return cmd
}
