package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sysfail-go/plan"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.json>",
	Short: "Validate a JSON plan description",
	Long:  `Parses a plan description and reports any invariant violations without starting a session.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	jp, err := loadPlanFile(args[0])
	if err != nil {
		return err
	}

	p, err := jp.toPlan()
	if err != nil {
		return err
	}

	if _, err := plan.Compile(p); err != nil {
		return err
	}

	fmt.Printf("ok: %d syscall outcome(s) valid\n", len(p.Outcomes))
	return nil
}
