package procmap

import (
	"bufio"
	"os"
	"strings"
	"testing"
)

const sampleMaps = `55a1f0000000-55a1f0021000 r-xp 00000000 08:01 131073  /usr/bin/myapp
55a1f0221000-55a1f0223000 rw-p 00021000 08:01 131073  /usr/bin/myapp
7f1234000000-7f1234021000 r-xp 00000000 08:01 131074  /usr/lib/x86_64-linux-gnu/libc.so.6
7f1234400000-7f1234410000 r-xp 00000000 08:01 131075  /opt/lib/libsysfail.1.2.so
7ffee0000000-7ffee0021000 rw-p 00000000 00:00 0       [stack]
7ffee0100000-7ffee0101000 r-xp 00000000 00:00 0       [vdso]
`

func writeTemp(t *testing.T, content string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "maps")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	return f
}

func TestParseMaps(t *testing.T) {
	f := writeTemp(t, sampleMaps)
	defer f.Close()

	m, err := parseMaps(f)
	if err != nil {
		t.Fatalf("parseMaps: %v", err)
	}
	if len(m.Ranges) != 6 {
		t.Fatalf("got %d ranges, want 6", len(m.Ranges))
	}

	first := m.Ranges[0]
	if first.Start != 0x55a1f0000000 {
		t.Errorf("Start = %x, want 55a1f0000000", first.Start)
	}
	if first.Length != 0x21000 {
		t.Errorf("Length = %x, want 21000", first.Length)
	}
	if first.Path != "/usr/bin/myapp" {
		t.Errorf("Path = %q", first.Path)
	}
	if !first.Executable() {
		t.Errorf("expected first range executable")
	}
}

func TestVDSODetection(t *testing.T) {
	f := writeTemp(t, sampleMaps)
	defer f.Close()
	m, err := parseMaps(f)
	if err != nil {
		t.Fatalf("parseMaps: %v", err)
	}
	var vdsoCount int
	for _, r := range m.Ranges {
		if r.VDSO() {
			vdsoCount++
		}
	}
	if vdsoCount != 1 {
		t.Errorf("vdso count = %d, want 1", vdsoCount)
	}
}

func TestLibSysfailDetection(t *testing.T) {
	f := writeTemp(t, sampleMaps)
	defer f.Close()
	m, err := parseMaps(f)
	if err != nil {
		t.Fatalf("parseMaps: %v", err)
	}

	r, err := m.SelfText(SharedSelf())
	if err != nil {
		t.Fatalf("SelfText(shared): %v", err)
	}
	if r.Path != "/opt/lib/libsysfail.1.2.so" {
		t.Errorf("SelfText path = %q", r.Path)
	}
}

func TestEmbeddedSelfUnique(t *testing.T) {
	f := writeTemp(t, sampleMaps)
	defer f.Close()
	m, err := parseMaps(f)
	if err != nil {
		t.Fatalf("parseMaps: %v", err)
	}

	r, err := m.SelfText(EmbeddedSelf("/usr/bin/myapp"))
	if err != nil {
		t.Fatalf("SelfText(embedded): %v", err)
	}
	if r.Start != 0x55a1f0000000 {
		t.Errorf("SelfText start = %x", r.Start)
	}
}

func TestSelfTextNoMatchErrors(t *testing.T) {
	f := writeTemp(t, sampleMaps)
	defer f.Close()
	m, err := parseMaps(f)
	if err != nil {
		t.Fatalf("parseMaps: %v", err)
	}
	if _, err := m.SelfText(EmbeddedSelf("/no/such/path")); err == nil {
		t.Errorf("expected error for no-match self-text predicate")
	}
}

func TestSelfTextAmbiguousErrors(t *testing.T) {
	maps := sampleMaps + "7f9999000000-7f9999021000 r-xp 00000000 08:01 999999 /opt/lib/libsysfail.2.0.so\n"
	f := writeTemp(t, maps)
	defer f.Close()
	m, err := parseMaps(f)
	if err != nil {
		t.Fatalf("parseMaps: %v", err)
	}
	if _, err := m.SelfText(SharedSelf()); err == nil {
		t.Errorf("expected error for ambiguous self-text match")
	}
}

func TestParseLineSkipsMalformed(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("not a valid line\n"))
	scanner.Scan()
	if _, ok := parseLine(scanner.Text()); ok {
		t.Errorf("expected malformed line to be skipped")
	}
}
