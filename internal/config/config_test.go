package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DBDriver != "sqlite" || c.OutputDir != "." || c.OutputPrefix != "wwarn" || c.S3Region != "us-east-1" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.YearStep != 0 || c.UseProcedures {
		t.Fatalf("year binning and procedures must be off by default: %+v", c)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "cfg.yaml")
	if err := os.WriteFile(path, []byte("year_step: 3\nmarker_list: /data/markers.txt\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("WWARNCALC_YEAR_STEP", "2")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.YearStep != 2 {
		t.Fatalf("year_step = %d, want env value 2", c.YearStep)
	}
	if c.MarkerList != "/data/markers.txt" {
		t.Fatalf("marker_list = %q", c.MarkerList)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for k, v := range map[string]string{"db_driver": "PGX", "year_step": "5", "s3_path_style": "true", "output_prefix": "mali"} {
		if err := c.Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := Save(c, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".wwarncalc", "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	got, err := Load("")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.DBDriver != "pgx" || got.YearStep != 5 || !got.S3PathStyle || got.OutputPrefix != "mali" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	for _, k := range Keys {
		if _, err := got.Get(k); err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
	}
}

func TestSetRejectsInvalid(t *testing.T) {
	c := &Global{}
	cases := [][2]string{
		{"db_driver", "oracle"},
		{"year_step", "-1"},
		{"year_step", "two"},
		{"year_step", "300"},
		{"use_procedures", "maybe"},
		{"output_prefix", ""},
		{"api_key", "x"},
	}
	for _, tc := range cases {
		if err := c.Set(tc[0], tc[1]); err == nil {
			t.Fatalf("set %s=%q: expected error", tc[0], tc[1])
		}
	}
	if _, err := c.Get("api_key"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("year_step: [1, 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed config")
	}
}

func TestLoadRejectsOverflowingYearStep(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WWARNCALC_YEAR_STEP", "300")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for year_step 300")
	}
}
