package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sysfail-go/procmap"
	"sysfail-go/rawsys"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check this machine's kernel support for syscall user dispatch",
	Long: `Checks that /proc/self/maps is readable, that the running kernel
accepts PR_SET_SYSCALL_USER_DISPATCH, and prints the resolved self-text
range, then immediately disarms dispatch again. Exits non-zero on kernels
that predate Linux 5.11.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	mapping, err := procmap.ReadMaps(rawsys.Getpid())
	if err != nil {
		return fmt.Errorf("/proc/self/maps unreadable: %w", err)
	}
	fmt.Println("ok: /proc/self/maps readable")

	exe, err := os.Readlink("/proc/self/exe")
	if err != nil {
		return fmt.Errorf("resolve /proc/self/exe: %w", err)
	}
	selfText, err := mapping.SelfText(procmap.EmbeddedSelf(exe))
	if err != nil {
		return fmt.Errorf("resolve self-text range: %w", err)
	}
	fmt.Printf("ok: self-text range %#x-%#x (%s)\n", selfText.Start, selfText.End(), exe)

	var toggle byte
	selectorAddr := uintptrOf(&toggle)
	const prSysDispatchOn = 1
	const prSysDispatchOff = 0

	if err := rawsys.PrctlSyscallUserDispatch(prSysDispatchOn, selfText.Start, selfText.Length, selectorAddr); err != nil {
		fmt.Println("FAIL: kernel refused PR_SET_SYSCALL_USER_DISPATCH (needs Linux >= 5.11):", err)
		return err
	}
	if err := rawsys.PrctlSyscallUserDispatch(prSysDispatchOff, 0, 0, 0); err != nil {
		fmt.Println("warning: failed to disarm dispatch after probe:", err)
	}
	fmt.Println("ok: kernel supports PR_SET_SYSCALL_USER_DISPATCH")

	return nil
}
