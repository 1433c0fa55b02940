package fleet

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aceteam-ai/vpswatch/internal/traffic"
)

func TestParseServers(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	cfg := ParseServers("hk-1:Hong Kong:hk:Hong Kong:2025-12-31:15:2TB, jp-1:Tokyo, :NoID, bad-only, sg-1:Singapore:SG::::500", logger)

	if cfg.Len() != 3 {
		t.Fatalf("Len() = %d, want 3; entries = %+v", cfg.Len(), cfg.Entries())
	}

	hk, ok := cfg.Lookup("hk-1")
	if !ok {
		t.Fatal("hk-1 missing")
	}
	want := Entry{
		ID: "hk-1", Name: "Hong Kong", CountryCode: "HK", Location: "Hong Kong",
		ExpireDate: "2025-12-31", ResetDay: 15, MonthlyTotal: 2 * traffic.TiB, Quota: "2TB",
	}
	if hk != want {
		t.Errorf("hk-1 = %+v, want %+v", hk, want)
	}

	jp, _ := cfg.Lookup("jp-1")
	if jp.ResetDay != 0 || jp.MonthlyTotal != 0 || jp.CountryCode != "" {
		t.Errorf("jp-1 unspecified fields should stay zero: %+v", jp)
	}

	sg, _ := cfg.Lookup("sg-1")
	if sg.MonthlyTotal != 500*traffic.GiB {
		t.Errorf("sg-1 MonthlyTotal = %d", sg.MonthlyTotal)
	}

	ids := []string{}
	for _, e := range cfg.Entries() {
		ids = append(ids, e.ID)
	}
	if strings.Join(ids, ",") != "hk-1,jp-1,sg-1" {
		t.Errorf("order = %v", ids)
	}

	if !strings.Contains(buf.String(), "without id or name") {
		t.Errorf("expected skip warning, got %q", buf.String())
	}
}

func TestParseServersInvalidFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := ParseServers("a:A:US:X::31:lots,b:B:US:X::abc", log.New(&buf, "", 0))

	a, _ := cfg.Lookup("a")
	if a.ResetDay != 0 {
		t.Errorf("out-of-range reset day kept: %d", a.ResetDay)
	}
	if a.MonthlyTotal != 0 {
		t.Errorf("malformed quota kept: %d", a.MonthlyTotal)
	}
	b, _ := cfg.Lookup("b")
	if b.ResetDay != 0 {
		t.Errorf("non-numeric reset day kept: %d", b.ResetDay)
	}

	out := buf.String()
	for _, want := range []string{"out of range", "invalid monthly total", "ignoring reset day"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %q", want, out)
		}
	}
}

func TestParseServersEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", ",,"} {
		if cfg := ParseServers(in, nil); cfg.Len() != 0 {
			t.Errorf("ParseServers(%q).Len() = %d", in, cfg.Len())
		}
	}
}

func TestParseServersDuplicateReplaces(t *testing.T) {
	cfg := ParseServers("a:First,b:B,a:Second", nil)
	entries := cfg.Entries()
	if len(entries) != 2 || entries[0].ID != "a" || entries[0].Name != "Second" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")
	content := `servers:
  - id: hk-1
    name: Hong Kong
    countryCode: hk
    location: Kowloon
    expireDate: "2025-12-31"
    resetDay: 10
    monthlyTotal: "1.5TB"
  - id: de-1
    name: Frankfurt
    resetDay: 40
  - name: missing id
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path, nil)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cfg.Len())
	}

	hk, _ := cfg.Lookup("hk-1")
	if hk.CountryCode != "HK" || hk.Location != "Kowloon" || hk.ResetDay != 10 {
		t.Errorf("hk-1 = %+v", hk)
	}
	if hk.MonthlyTotal != traffic.TiB+traffic.TiB/2 {
		t.Errorf("hk-1 MonthlyTotal = %d", hk.MonthlyTotal)
	}

	de, _ := cfg.Lookup("de-1")
	if de.ResetDay != 0 {
		t.Errorf("de-1 ResetDay = %d, want 0", de.ResetDay)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("LoadFile() should fail for missing file")
	}
	if _, err := ParseYAML([]byte("servers: [:"), nil); err == nil {
		t.Error("ParseYAML() should fail for invalid yaml")
	}
}

func TestConfigExtend(t *testing.T) {
	env := ParseServers("a:A,b:B", nil)
	file := New(Entry{ID: "b", Name: "B2"}, Entry{ID: "c", Name: "C"})

	merged := env.Extend(file)
	entries := merged.Entries()
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[1].Name != "B2" || entries[2].ID != "c" {
		t.Errorf("entries = %+v", entries)
	}
	if env.Len() != 2 {
		t.Error("Extend modified the receiver")
	}
}

func TestConfigResetDay(t *testing.T) {
	cfg := New(Entry{ID: "pinned", Name: "P", ResetDay: 20})

	tests := []struct {
		name     string
		id       string
		reported []int
		want     int
	}{
		{"configured wins", "pinned", []int{5, 7}, 20},
		{"agent reset day", "other", []int{5, 7}, 5},
		{"network reset day", "other", []int{0, 7}, 7},
		{"default", "other", []int{0, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ResetDay(tt.id, tt.reported...); got != tt.want {
				t.Errorf("ResetDay() = %d, want %d", got, tt.want)
			}
		})
	}

	var nilCfg *Config
	if got := nilCfg.ResetDay("x", 9); got != 9 {
		t.Errorf("nil config ResetDay = %d, want 9", got)
	}
}
