package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show hooks installed so far by this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			hooks := sharedManager().List()
			if len(hooks) == 0 {
				fmt.Println("no hooks installed")
				return nil
			}
			for _, h := range hooks {
				fmt.Printf("%s  %-20s %-12s %s  0x%x -> 0x%x  (%s)\n",
					h.ID, h.Symbol, h.Pattern, h.Path, h.OldAddr, h.NewAddr, h.InstalledAt)
			}
			return nil
		},
	}
}
