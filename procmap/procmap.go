// Package procmap reads a process's memory map from /proc/pid/maps and
// identifies the injector's own executable text range — the one address
// range syscall user dispatch must allow through un-trapped, since that is
// where the SIGSYS handler and the syscalls it performs on the engine's
// own behalf live.
//
// Two deployment shapes are supported (see Session's Mode for the caller-
// facing switch): embedded mode, where the whole statically linked Go
// binary — including application code — is self-text; and shared mode,
// where a cabi-built libsysfail*.so is loaded into an arbitrary host
// process and only that one mapped object is self-text, matching the
// original library's deployment model.
package procmap

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// AddrRange describes one row of /proc/pid/maps.
type AddrRange struct {
	Start       uintptr
	Length      uintptr
	Permissions string
	Path        string
	Inode       uint64
}

// End returns the exclusive end address of the range.
func (r AddrRange) End() uintptr { return r.Start + r.Length }

// Executable reports whether the range is mapped executable.
func (r AddrRange) Executable() bool {
	return strings.Contains(r.Permissions, "x")
}

var vdsoPattern = regexp.MustCompile(`^\[(vdso|vvar|vsyscall)\]$`)

// VDSO reports whether the range is one of the kernel-provided vDSO
// pseudo-mappings: [vdso], [vvar] or [vsyscall]. Other bracketed names
// such as [stack] or [heap] do not count. These are explicitly out of scope: the engine
// never attempts to bring vDSO calls under dispatch (see the vDSO open
// question), and VDSO is exposed so callers can filter them out of any
// range list before passing it to the kernel.
func (r AddrRange) VDSO() bool {
	return vdsoPattern.MatchString(r.Path)
}

var libsysfailPattern = regexp.MustCompile(`^.*/libsysfail[.0-9]*\.so[.0-9]*$`)

// LibSysfail reports whether the range's backing path matches the shared-
// mode library naming convention (libsysfail*.so*), as produced by the
// cabi package's c-shared build mode.
func (r AddrRange) LibSysfail() bool {
	return libsysfailPattern.MatchString(r.Path)
}

// Mapping is a process's full set of mapped ranges, ordered by start
// address as they appear in /proc/pid/maps.
type Mapping struct {
	Ranges []AddrRange
}

// ReadMaps parses /proc/pid/maps for pid.
func ReadMaps(pid int) (*Mapping, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("procmap: open %s: %w", path, err)
	}
	defer f.Close()
	return parseMaps(f)
}

func parseMaps(f *os.File) (*Mapping, error) {
	m := &Mapping{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		r, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		m.Ranges = append(m.Ranges, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("procmap: scan: %w", err)
	}
	return m, nil
}

// parseLine parses a single /proc/pid/maps row, e.g.:
//
//	7f1234000000-7f1234021000 r-xp 00000000 08:01 131073  /usr/lib/x86_64-linux-gnu/libc.so.6
func parseLine(line string) (AddrRange, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return AddrRange{}, false
	}
	addrs := strings.SplitN(fields[0], "-", 2)
	if len(addrs) != 2 {
		return AddrRange{}, false
	}
	start, err := strconv.ParseUint(addrs[0], 16, 64)
	if err != nil {
		return AddrRange{}, false
	}
	end, err := strconv.ParseUint(addrs[1], 16, 64)
	if err != nil {
		return AddrRange{}, false
	}
	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return AddrRange{}, false
	}
	path := ""
	if len(fields) >= 6 {
		path = strings.Join(fields[5:], " ")
	}
	return AddrRange{
		Start:       uintptr(start),
		Length:      uintptr(end - start),
		Permissions: fields[1],
		Path:        path,
		Inode:       inode,
	}, true
}

// SelfText returns the unique executable range whose path matches
// isSelf. It is an error for zero or more than one range to match: the
// caller must be able to name its own code with certainty, since that
// range becomes the kernel's syscall user dispatch allow-list.
func (m *Mapping) SelfText(isSelf func(AddrRange) bool) (AddrRange, error) {
	var matches []AddrRange
	for _, r := range m.Ranges {
		if r.Executable() && isSelf(r) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return AddrRange{}, fmt.Errorf("procmap: no executable range matched self-text predicate")
	default:
		return AddrRange{}, fmt.Errorf("procmap: %d executable ranges matched self-text predicate, want exactly 1", len(matches))
	}
}

// EmbeddedSelf matches the realpath of /proc/self/exe, for embedded mode
// where the whole statically linked binary is treated as self-text.
func EmbeddedSelf(exePath string) func(AddrRange) bool {
	return func(r AddrRange) bool {
		return r.Path == exePath
	}
}

// SharedSelf matches the libsysfail*.so naming convention, for shared
// mode where a cabi-built shared object is loaded into a host process.
func SharedSelf() func(AddrRange) bool {
	return func(r AddrRange) bool {
		return r.LibSysfail()
	}
}
