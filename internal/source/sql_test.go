package source

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/markers"
	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
)

const schema = `
CREATE TABLE study (id_study INTEGER PRIMARY KEY, wwarn_study_id TEXT, label TEXT, investigator TEXT);
CREATE TABLE location (id_location INTEGER PRIMARY KEY, fk_study_id INTEGER, country TEXT, site TEXT);
CREATE TABLE subject (id_subject INTEGER PRIMARY KEY, fk_location_id INTEGER, patient_id TEXT, age REAL, date_of_inclusion TEXT);
CREATE TABLE sample (id_sample INTEGER PRIMARY KEY, fk_subject_id INTEGER);
CREATE TABLE marker (id_marker INTEGER PRIMARY KEY, locus_name TEXT, locus_position TEXT, type TEXT);
CREATE TABLE genotype (id_genotype INTEGER PRIMARY KEY, fk_sample_id INTEGER, fk_marker_id INTEGER, value TEXT);

INSERT INTO study VALUES (1, 'S1', 'Study A', 'Doumbo');
INSERT INTO location VALUES (1, 1, 'Mali', 'Bamako'), (2, 1, 'Mali', 'Kati');
INSERT INTO subject VALUES
  (1, 1, 'P1', 3, '2005-03-01'),
  (2, 1, 'P2', NULL, '2009-06-01'),
  (3, 2, 'P3', 30, NULL);
INSERT INTO sample VALUES (1, 1), (2, 2), (3, 3);
INSERT INTO marker VALUES
  (1, 'pfcrt', '76', 'SNP'),
  (2, 'pfdhps', '540', 'SNP'),
  (3, 'pfdhps', '437', 'SNP'),
  (4, 'pfmdr1', NULL, 'Copy Number');
INSERT INTO genotype VALUES
  (1, 1, 1, 'K'), (2, 1, 2, 'E'), (3, 1, 3, 'G'), (4, 1, 4, '1.2'),
  (5, 2, 1, 'T'),
  (6, 3, 1, 'Not genotyped'), (7, 3, 2, 'K');
`

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := OpenDB(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func TestSQLReaderGroupsRowsBySubject(t *testing.T) {
	db := testDB(t)
	r, err := NewSQLReader(context.Background(), db, SQLOptions{Driver: "sqlite"})
	require.NoError(t, err)
	recs := drain(t, r)
	require.NoError(t, r.Close())
	require.Len(t, recs, 3)

	p1 := recs[0]
	assert.Equal(t, prevalence.MetadataKey{StudyID: "S1", StudyLabel: "Study A", Investigator: "Doumbo", Country: "Mali", Site: "Bamako"}, p1.Meta)
	assert.Equal(t, "P1", p1.PatientID)
	require.NotNil(t, p1.Age)
	assert.Equal(t, 3.0, *p1.Age)
	assert.Equal(t, time.Date(2005, time.March, 1, 0, 0, 0, 0, time.UTC), p1.InclusionDate)
	assert.Equal(t, []markers.Call{
		{Marker: "pfcrt_76_SNP", Genotype: "K"},
		{Marker: "pfdhps_540_SNP", Genotype: "E"},
		{Marker: "pfdhps_437_SNP", Genotype: "G"},
		{Marker: "pfmdr1_Copy Number", Genotype: "1.2"},
	}, p1.Calls)

	assert.Nil(t, recs[1].Age)
	assert.Len(t, recs[1].Calls, 1)
	assert.Equal(t, "Kati", recs[2].Meta.Site)
	assert.True(t, recs[2].InclusionDate.IsZero())
}

func TestSQLReaderWhere(t *testing.T) {
	db := testDB(t)
	r, err := NewSQLReader(context.Background(), db, SQLOptions{Driver: "sqlite", Where: "l.site = 'Kati'"})
	require.NoError(t, err)
	defer r.Close()
	recs := drain(t, r)
	require.Len(t, recs, 1)
	assert.Equal(t, "P3", recs[0].PatientID)
}

func TestSQLPipeline(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ranges, err := DateRanges(ctx, db, "sqlite", "l.country = 'Mali'")
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	yb, err := grouping.NewYearBins(5, ranges)
	require.NoError(t, err)

	list, err := markers.ParseList(strings.NewReader("pfdhps,pfdhps\t540,437\tSNP\tE,G\tdhps double\tMutant\n"), "markers.txt")
	require.NoError(t, err)
	bins, err := grouping.ParseCopyNumberBins(strings.NewReader("1\t0.5\t1.49\n"), "cn.txt")
	require.NoError(t, err)

	r, err := NewSQLReader(ctx, db, SQLOptions{Driver: "sqlite"})
	require.NoError(t, err)
	defer r.Close()
	n := &Normalizer{CopyNumberBins: bins, YearBins: yb, Combinations: list.Combinations}
	store := prevalence.NewStore()
	tally, err := prevalence.Tabulate(store, NewStream(r, n), nil)
	require.NoError(t, err)
	assert.Equal(t, 8, tally.Observations)

	bamako := prevalence.MetadataKey{StudyID: "S1", StudyLabel: "Study A", Investigator: "Doumbo", Country: "Mali", Site: "Bamako_2005-2010"}
	combo, ok := store.Marker(bamako, markers.MarkerKey{{Name: "pfdhps", Position: "540"}, {Name: "pfdhps", Position: "437"}})
	require.True(t, ok)
	assert.Equal(t, 1, combo.SampleSize(prevalence.All))
	cn, ok := store.Marker(bamako, markers.MarkerKey{{Name: "pfmdr1"}})
	require.True(t, ok)
	_, ok = cn.Genotype(markers.GenotypeKey{"1"})
	assert.True(t, ok, "copy number binned before counting")
}

func TestGenotypeQueryPlaceholders(t *testing.T) {
	q, args, err := GenotypeQuery("pgx", "")
	require.NoError(t, err)
	assert.Empty(t, args)
	assert.Contains(t, q, "JOIN marker m ON m.id_marker = g.fk_marker_id")
	assert.Contains(t, q, "ORDER BY p.id_subject, m.id_marker")
	assert.NotContains(t, q, "WHERE")
}

func TestProcedureCall(t *testing.T) {
	key := markers.MarkerKey{{Name: "pfdhps", Position: "540"}, {Name: "pfdhps", Position: "437"}}
	q, args, err := ProcedureCall("mysql", "dhps_double", key, markers.GenotypeKey{"E", "G"}, "l.country = 'Mali'")
	require.NoError(t, err)
	assert.Equal(t, "CALL dhps_double(?,?,?,?,?,?,?)", q)
	assert.Equal(t, []interface{}{"pfdhps", "540", "E", "pfdhps", "437", "G", "AND l.country = 'Mali'"}, args)

	_, _, err = ProcedureCall("mysql", "dhps_double", key, markers.GenotypeKey{"E"}, "")
	assert.ErrorIs(t, err, markers.ErrArityMismatch)
}

func TestSQLReaderRejectsProceduresOutsideMySQL(t *testing.T) {
	db := testDB(t)
	procs := []markers.Combination{{
		Marker:    markers.MarkerKey{{Name: "a", Position: "1"}, {Name: "b", Position: "2"}},
		Procedure: "ab",
		Genotypes: []markers.GenotypeKey{{"X", "Y"}},
	}}
	_, err := NewSQLReader(context.Background(), db, SQLOptions{Driver: "sqlite", Procedures: procs})
	require.Error(t, err)
}

func TestOpenDBErrors(t *testing.T) {
	_, err := OpenDB(context.Background(), "oracle", "x")
	require.Error(t, err)
	_, err = OpenDB(context.Background(), "sqlite", " ")
	require.Error(t, err)
}
