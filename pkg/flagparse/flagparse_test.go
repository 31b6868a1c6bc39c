package flagparse

import (
	"testing"
)

func TestParseBackupFlags(t *testing.T) {
	command, flagMap, err := Parse([]string{
		"backup",
		"-source", `C:\Users`,
		"-target", `D:\backup`,
		"-mode", "mirror",
		"-mirror-retry-count", "7",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if command != Backup {
		t.Fatalf("command = %v, want Backup", command)
	}

	if got := flagMap["source"]; got != `C:\Users` {
		t.Errorf("source = %v", got)
	}
	if got := flagMap["mode"]; got != "mirror" {
		t.Errorf("mode = %v", got)
	}
	if got := flagMap["mirror-retry-count"]; got != 7 {
		t.Errorf("mirror-retry-count = %v, want int 7", got)
	}

	// Flags left at their defaults must not enter the map at all.
	if _, ok := flagMap["compression-format"]; ok {
		t.Error("unset flags must not appear in the flag map")
	}
	if _, ok := flagMap["log-level"]; ok {
		t.Error("unset global flags must not appear in the flag map")
	}
}

func TestParseListFlagsAreSplit(t *testing.T) {
	_, flagMap, err := Parse([]string{
		"backup",
		"-target", `D:\backup`,
		"-exclude-files", "ntuser*,*.tmp",
		"-grant-identities", "S-1-5-21-1-2-3-500, S-1-5-21-1-2-3-501",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	excludes, ok := flagMap["exclude-files"].([]string)
	if !ok || len(excludes) != 2 || excludes[0] != "ntuser*" || excludes[1] != "*.tmp" {
		t.Errorf("exclude-files = %v, want [ntuser* *.tmp]", flagMap["exclude-files"])
	}

	identities, ok := flagMap["grant-identities"].([]string)
	if !ok || len(identities) != 2 || identities[1] != "S-1-5-21-1-2-3-501" {
		t.Errorf("grant-identities = %v", flagMap["grant-identities"])
	}
}

func TestParseInitForceFlag(t *testing.T) {
	command, flagMap, err := Parse([]string{"init", "-target", `D:\backup`, "-force"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if command != Init {
		t.Fatalf("command = %v, want Init", command)
	}
	if got := flagMap["force"]; got != true {
		t.Errorf("force = %v, want true", got)
	}
}

func TestParseVersionAndHelp(t *testing.T) {
	command, flagMap, err := Parse([]string{"version"})
	if err != nil || command != Version || flagMap != nil {
		t.Errorf("Parse(version) = %v, %v, %v", command, flagMap, err)
	}

	command, _, err = Parse(nil)
	if err != nil || command != None {
		t.Errorf("Parse(no args) = %v, %v; want None and no error", command, err)
	}

	command, _, err = Parse([]string{"-h"})
	if err != nil || command != None {
		t.Errorf("Parse(-h) = %v, %v; want None and no error", command, err)
	}
}

func TestParseUnknownCommand(t *testing.T) {
	if _, _, err := Parse([]string{"restore"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestParseCommandRoundTrip(t *testing.T) {
	for _, s := range []string{"backup", "init", "version"} {
		c, err := ParseCommand(s)
		if err != nil {
			t.Fatalf("ParseCommand(%q) failed: %v", s, err)
		}
		if c.String() != s {
			t.Errorf("round trip of %q yielded %q", s, c.String())
		}
	}
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		expect []string
	}{
		{"Simple list", "a,b,c", []string{"a", "b", "c"}},
		{"Spaces are trimmed", " a , b ", []string{"a", "b"}},
		{"Empty items are dropped", "a,,b,", []string{"a", "b"}},
		{"Quotes group commas", `"a,b",c`, []string{"a,b", "c"}},
		{"Single quotes group too", `'x, y',z`, []string{"x, y", "z"}},
		{"Nested other quote kept", `"it's",b`, []string{"it's", "b"}},
		{"Backslashes are literal", `C:\Users\10000`, []string{`C:\Users\10000`}},
		{"Empty input", "", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseList(tc.input)
			if len(got) != len(tc.expect) {
				t.Fatalf("ParseList(%q) = %v, want %v", tc.input, got, tc.expect)
			}
			for i := range tc.expect {
				if got[i] != tc.expect[i] {
					t.Errorf("item %d = %q, want %q", i, got[i], tc.expect[i])
				}
			}
		})
	}
}
