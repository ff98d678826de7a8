package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/wwarncalc/internal/source"
)

const (
	itMarkerList = "#LOCUS_NAME\tLOCUS_POSITION\tTYPE\tGENOTYPE\tCATEGORY\tLABEL\n" +
		"pfcrt\t76\tSNP\tK\tpfcrt 76\tWild\n" +
		"pfcrt\t76\tSNP\tT\tpfcrt 76\tMutant\n" +
		"pfcrt\t76\tSNP\tNot genotyped\tpfcrt 76\tMissing\n"
	itAgeGroups = "None\t5\t<5\n5\tNone\t>=5\n"
	itTemplate  = "STUDY_ID\tSTUDY_LABEL\tINVESTIGATOR\tCOUNTRY\tSITE\tPATIENT_ID\tAGE\tDATE_OF_INCLUSION\tpfcrt_76_SNP\n" +
		"S1\tStudy A\tDoumbo\tMali\tBamako\tP1\t3\t2005-03-01\tK\n" +
		"S1\tStudy A\tDoumbo\tMali\tBamako\tP2\t12\t2006-03-01\tT\n" +
		"S1\tStudy A\tDoumbo\tMali\tBamako\tP3\t\t2006-05-01\tNot genotyped\n"
)

// resetCLI clears flag and config state that persists between Execute calls.
func resetCLI() {
	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
	cfg = nil
	cfgFile = ""
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCLI()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestCLI_TemplateRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	list := writeFile(t, home, "markers.txt", itMarkerList)
	ages := writeFile(t, home, "ages.txt", itAgeGroups)
	tpl := writeFile(t, home, "mali.tsv", itTemplate)
	outDir := filepath.Join(home, "out")
	prom := filepath.Join(home, "run.prom")

	out := mustRun(t, "template", tpl, "-m", list, "-a", ages, "-o", outDir, "--prefix", "mali", "--metrics-textfile", prom)
	if !strings.Contains(out, "✓ Tabulated 3 observations from 3 records across 1 sites") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	for _, name := range []string{"mali.all.calcs", "mali.ags.calcs", "mali.pfcrt_76.tsv"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing output %s: %v", name, err)
		}
	}

	all := readFile(t, filepath.Join(outDir, "mali.all.calcs"))
	if !strings.Contains(all, "pfcrt 76") || !strings.Contains(all, "50.0%") {
		t.Fatalf("unexpected all.calcs:\n%s", all)
	}
	ags := readFile(t, filepath.Join(outDir, "mali.ags.calcs"))
	if !strings.Contains(ags, "<5") || !strings.Contains(ags, ">=5") {
		t.Fatalf("age groups missing from ags.calcs:\n%s", ags)
	}
	if m := readFile(t, prom); !strings.Contains(m, "wwarncalc_records_total 3") {
		t.Fatalf("unexpected metrics:\n%s", m)
	}
}

func TestCLI_TemplateYearStepAndPreview(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	list := writeFile(t, home, "markers.txt", itMarkerList)
	tpl := writeFile(t, home, "mali.tsv", itTemplate)
	outDir := filepath.Join(home, "out")

	out := mustRun(t, "template", tpl, "-m", list, "-o", outDir, "--year-step", "1", "--preview")
	for _, site := range []string{"Bamako_2005-2006", "Bamako_2006-2007"} {
		if !strings.Contains(out, site) {
			t.Fatalf("preview missing site %s:\n%s", site, out)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "wwarn.ags.calcs")); err == nil {
		t.Fatalf("ags.calcs must not be written without age groups")
	}
}

func TestCLI_TemplateRequiresMarkerList(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	tpl := writeFile(t, home, "mali.tsv", itTemplate)
	if _, err := runCmd(t, "template", tpl, "-o", home); err == nil {
		t.Fatalf("expected error without a marker list")
	}
}

func TestCLI_DB(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	list := writeFile(t, home, "markers.txt", itMarkerList)
	dbPath := filepath.Join(home, "wwarn.db")

	db, err := source.OpenDB(context.Background(), "sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE study (id_study INTEGER PRIMARY KEY, wwarn_study_id TEXT, label TEXT, investigator TEXT)`,
		`CREATE TABLE location (id_location INTEGER PRIMARY KEY, fk_study_id INTEGER, country TEXT, site TEXT)`,
		`CREATE TABLE subject (id_subject INTEGER PRIMARY KEY, fk_location_id INTEGER, patient_id TEXT, age REAL, date_of_inclusion TEXT)`,
		`CREATE TABLE sample (id_sample INTEGER PRIMARY KEY, fk_subject_id INTEGER)`,
		`CREATE TABLE marker (id_marker INTEGER PRIMARY KEY, locus_name TEXT, locus_position TEXT, type TEXT)`,
		`CREATE TABLE genotype (id_genotype INTEGER PRIMARY KEY, fk_sample_id INTEGER, fk_marker_id INTEGER, value TEXT)`,
		`INSERT INTO study VALUES (1, 'S1', 'Study A', 'Doumbo')`,
		`INSERT INTO location VALUES (1, 1, 'Mali', 'Bamako')`,
		`INSERT INTO subject VALUES (1, 1, 'P1', 3, '2005-03-01'), (2, 1, 'P2', 20, '2005-04-01')`,
		`INSERT INTO sample VALUES (1, 1), (2, 2)`,
		`INSERT INTO marker VALUES (1, 'pfcrt', '76', 'SNP')`,
		`INSERT INTO genotype VALUES (1, 1, 1, 'K'), (2, 2, 1, 'K')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	outDir := filepath.Join(home, "out")
	out := mustRun(t, "db", "--driver", "sqlite", "--dsn", dbPath, "-m", list, "-o", outDir)
	if !strings.Contains(out, "✓ Tabulated 2 observations from 2 records across 1 sites") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	all := readFile(t, filepath.Join(outDir, "wwarn.all.calcs"))
	if !strings.Contains(all, "100.0%") {
		t.Fatalf("unexpected all.calcs:\n%s", all)
	}

	if _, err := runCmd(t, "db", "--driver", "sqlite", "--dsn", dbPath, "-m", list, "-o", outDir, "--procedures"); err == nil {
		t.Fatalf("expected error for procedures on sqlite")
	}
}

func TestCLI_Check(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	list := writeFile(t, home, "markers.txt", itMarkerList)
	ages := writeFile(t, home, "ages.txt", itAgeGroups)

	out := mustRun(t, "check", "-m", list, "-a", ages)
	if !strings.Contains(out, "✓ Marker list: 1 markers, 1 categories, 0 combinations") {
		t.Fatalf("unexpected check output:\n%s", out)
	}
	if !strings.Contains(out, "[<5 >=5]") {
		t.Fatalf("age groups not listed:\n%s", out)
	}

	bad := writeFile(t, home, "bad_ages.txt", "None\tNone\tany\n")
	if _, err := runCmd(t, "check", "-m", list, "-a", bad); err == nil {
		t.Fatalf("expected error for an unbounded age group")
	}
}

func TestCLI_CheckExpandsHomeInPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, home, "markers.txt", itMarkerList)
	writeFile(t, home, "ages.txt", itAgeGroups)

	out := mustRun(t, "check", "-m", "~/markers.txt", "-a", "~/ages.txt")
	if !strings.Contains(out, "✓ Marker list: 1 markers") {
		t.Fatalf("unexpected check output:\n%s", out)
	}

	resetCLI()
	if err := checkCmd.ParseFlags([]string{"-m", "~/markers.txt"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	c, err := effectiveConfig(checkCmd)
	if err != nil {
		t.Fatalf("effective config: %v", err)
	}
	if want := filepath.Join(home, "markers.txt"); c.MarkerList != want {
		t.Fatalf("marker list = %q, want %q", c.MarkerList, want)
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	mustRun(t, "config", "set", "output_prefix", "mali")
	mustRun(t, "config", "set", "db_dsn", "user:secret@tcp(db:3306)/wwarn")
	out := mustRun(t, "config", "show")
	if !strings.Contains(out, "output_prefix: mali") {
		t.Fatalf("output_prefix not saved:\n%s", out)
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("db_dsn must be masked:\n%s", out)
	}
	if _, err := runCmd(t, "config", "set", "year_step", "-2"); err == nil {
		t.Fatalf("expected error for negative year_step")
	}
}
