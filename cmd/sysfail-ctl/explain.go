package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sysfail-go/plan"
)

var explainCmd = &cobra.Command{
	Use:   "explain <plan.json> <syscall>",
	Short: "Show the compiled outcome for one syscall",
	Long:  `Prints the compiled cumulative-weight errno table and delay bound a plan would apply to one syscall number.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	jp, err := loadPlanFile(args[0])
	if err != nil {
		return err
	}
	nr, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("syscall %q is not a number: %w", args[1], err)
	}

	p, err := jp.toPlan()
	if err != nil {
		return err
	}
	ap, err := plan.Compile(p)
	if err != nil {
		return err
	}

	ao := ap.Lookup(nr)
	if ao == nil {
		fmt.Printf("syscall %d: not in plan, pass-through\n", nr)
		return nil
	}

	fmt.Printf("syscall %d\n", nr)
	fmt.Printf("  fail:  p=%.4f after_bias=%.4f\n", ao.Fail.P, ao.Fail.AfterBias)
	fmt.Printf("  delay: p=%.4f after_bias=%.4f max=%dus\n", ao.Delay.P, ao.Delay.AfterBias, ao.MaxDelay)

	return printErrnoTable(ao)
}

func printErrnoTable(ao *plan.ActiveOutcome) error {
	if len(ao.ByCumulative) == 0 {
		fmt.Println("  no error weights configured")
		return nil
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if interactive {
		fmt.Fprintln(w, "  ERRNO\tWEIGHT SHARE\tCUMULATIVE")
	} else {
		fmt.Fprintln(w, "errno\tweight_share\tcumulative")
	}

	prev := 0.0
	for _, we := range ao.ByCumulative {
		share := (we.CumulativeWeight - prev) / ao.TotalWeight
		fmt.Fprintf(w, "  %d\t%.2f%%\t%.4f\n", we.Errno, share*100, we.CumulativeWeight)
		prev = we.CumulativeWeight
	}
	return w.Flush()
}
