package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/markers"
	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
)

// SQLOptions configures a database source.
type SQLOptions struct {
	Driver string
	// Where is a raw SQL filter appended to the query, e.g. "l.country = 'Mali'".
	Where string
	// Procedures lists combinations whose rows come from stored procedures.
	// Only honoured for mysql.
	Procedures []markers.Combination
	Logger     *zap.Logger
}

type genotypeRow struct {
	SubjectID     int64           `db:"subject_id"`
	StudyID       sql.NullString  `db:"study_id"`
	StudyLabel    sql.NullString  `db:"study_label"`
	Investigator  sql.NullString  `db:"investigator"`
	Country       sql.NullString  `db:"country"`
	Site          sql.NullString  `db:"site"`
	PatientID     sql.NullString  `db:"patient_id"`
	Age           sql.NullFloat64 `db:"age"`
	Inclusion     sql.NullString  `db:"date_of_inclusion"`
	LocusName     string          `db:"locus_name"`
	LocusPosition sql.NullString  `db:"locus_position"`
	MarkerType    string          `db:"marker_type"`
	Genotype      string          `db:"genotype"`
}

// marker renders the row's marker descriptor: name_position_type, or
// name_type when the marker has no position.
func (r genotypeRow) marker() string {
	pos := strings.TrimSpace(r.LocusPosition.String)
	if !r.LocusPosition.Valid || pos == "" || strings.EqualFold(pos, "None") {
		return r.LocusName + "_" + r.MarkerType
	}
	return r.LocusName + "_" + pos + "_" + r.MarkerType
}

type procedureRow struct {
	StudyID      sql.NullString  `db:"study_id"`
	StudyLabel   sql.NullString  `db:"study_label"`
	Investigator sql.NullString  `db:"investigator"`
	Country      sql.NullString  `db:"country"`
	Site         sql.NullString  `db:"site"`
	PatientID    sql.NullString  `db:"patient_id"`
	Age          sql.NullFloat64 `db:"age"`
	Inclusion    sql.NullString  `db:"date_of_inclusion"`
	Marker       string          `db:"marker"`
	Genotype     string          `db:"genotype"`
}

func metaOf(studyID, label, investigator, country, site sql.NullString) prevalence.MetadataKey {
	return prevalence.MetadataKey{
		StudyID:      studyID.String,
		StudyLabel:   label.String,
		Investigator: investigator.String,
		Country:      country.String,
		Site:         site.String,
	}
}

func subjectOf(patient sql.NullString, age sql.NullFloat64, inclusion sql.NullString) (Record, error) {
	rec := Record{PatientID: patient.String}
	if age.Valid {
		v := age.Float64
		rec.Age = &v
	}
	if inclusion.Valid && !missing(inclusion.String) {
		ts, ok := parseTimeMaybe(inclusion.String)
		if !ok {
			return Record{}, fmt.Errorf("patient %q: unrecognised inclusion date %q", patient.String, inclusion.String)
		}
		rec.InclusionDate = ts
	}
	return rec, nil
}

// baseQuery joins study, location, subject, sample, genotype and marker.
func baseQuery(driver string, columns ...string) sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(placeholders(driver)).
		Select(columns...).
		From("study s").
		Join("location l ON s.id_study = l.fk_study_id").
		Join("subject p ON p.fk_location_id = l.id_location").
		Join("sample sp ON sp.fk_subject_id = p.id_subject").
		Join("genotype g ON g.fk_sample_id = sp.id_sample").
		Join("marker m ON m.id_marker = g.fk_marker_id")
}

// GenotypeQuery builds the query returning one row per genotype call, ordered
// so that the rows of one subject are adjacent.
func GenotypeQuery(driver, where string) (string, []interface{}, error) {
	b := baseQuery(driver,
		"p.id_subject AS subject_id",
		"s.wwarn_study_id AS study_id",
		"s.label AS study_label",
		"s.investigator AS investigator",
		"l.country AS country",
		"l.site AS site",
		"p.patient_id AS patient_id",
		"p.age AS age",
		"p.date_of_inclusion AS date_of_inclusion",
		"m.locus_name AS locus_name",
		"m.locus_position AS locus_position",
		"m.type AS marker_type",
		"g.value AS genotype",
	).OrderBy("p.id_subject", "m.id_marker")
	if strings.TrimSpace(where) != "" {
		b = b.Where(where)
	}
	return b.ToSql()
}

// DateRangeQuery builds the per site inclusion date span query.
func DateRangeQuery(driver, where string) (string, []interface{}, error) {
	b := baseQuery(driver,
		"s.label AS study_label",
		"l.site AS site",
		"MIN(p.date_of_inclusion) AS min_date",
		"MAX(p.date_of_inclusion) AS max_date",
	).Where("p.date_of_inclusion IS NOT NULL").
		GroupBy("s.label", "l.site")
	if strings.TrimSpace(where) != "" {
		b = b.Where(where)
	}
	return b.ToSql()
}

// ProcedureCall builds the stored procedure call for one combination
// genotype: name, position and genotype of every locus, then the filter.
func ProcedureCall(driver, procedure string, loci markers.MarkerKey, genotype markers.GenotypeKey, where string) (string, []interface{}, error) {
	if len(loci) != len(genotype) {
		return "", nil, fmt.Errorf("procedure %s: %w", procedure, markers.ErrArityMismatch)
	}
	args := make([]interface{}, 0, 3*len(loci)+1)
	for i, l := range loci {
		args = append(args, l.Name, l.Position, genotype[i])
	}
	filter := ""
	if strings.TrimSpace(where) != "" {
		filter = "AND " + where
	}
	args = append(args, filter)
	marks := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	return sq.Expr("CALL "+procedure+"("+marks+")", args...).ToSql()
}

// DateRanges queries the inclusion date span of every (study label, site).
func DateRanges(ctx context.Context, db *sqlx.DB, driver, where string) (grouping.DateRanges, error) {
	name, err := driverName(driver)
	if err != nil {
		return nil, err
	}
	query, args, err := DateRangeQuery(name, where)
	if err != nil {
		return nil, fmt.Errorf("build date range query: %w", err)
	}
	var rows []struct {
		StudyLabel sql.NullString `db:"study_label"`
		Site       sql.NullString `db:"site"`
		Min        sql.NullString `db:"min_date"`
		Max        sql.NullString `db:"max_date"`
	}
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query date ranges: %w", err)
	}
	ranges := grouping.DateRanges{}
	for _, r := range rows {
		for _, v := range []sql.NullString{r.Min, r.Max} {
			if !v.Valid || missing(v.String) {
				continue
			}
			ts, ok := parseTimeMaybe(v.String)
			if !ok {
				return nil, fmt.Errorf("site %q: unrecognised inclusion date %q", r.Site.String, v.String)
			}
			ranges.Observe(r.StudyLabel.String, r.Site.String, ts)
		}
	}
	return ranges, nil
}

type procedureQuery struct {
	name  string
	query string
	args  []interface{}
}

// SQLReader streams subject records from the WWARN schema.
type SQLReader struct {
	ctx     context.Context
	db      *sqlx.DB
	log     *zap.Logger
	rows    *sqlx.Rows
	pending *genotypeRow
	procs   []procedureQuery
	proc    *sqlx.Rows
	rowNum  int
}

// NewSQLReader runs the genotype query. Stored procedure calls, if any, run
// lazily once the main rows are exhausted.
func NewSQLReader(ctx context.Context, db *sqlx.DB, opt SQLOptions) (*SQLReader, error) {
	name, err := driverName(opt.Driver)
	if err != nil {
		return nil, err
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	query, args, err := GenotypeQuery(name, opt.Where)
	if err != nil {
		return nil, fmt.Errorf("build genotype query: %w", err)
	}
	r := &SQLReader{ctx: ctx, db: db, log: log}
	if len(opt.Procedures) > 0 {
		if name != DriverMySQL {
			return nil, fmt.Errorf("stored procedures require the mysql driver, got %s", name)
		}
		for _, c := range opt.Procedures {
			if c.Procedure == "" {
				continue
			}
			for _, g := range c.Genotypes {
				q, a, err := ProcedureCall(name, c.Procedure, c.Marker, g, opt.Where)
				if err != nil {
					return nil, err
				}
				r.procs = append(r.procs, procedureQuery{name: c.Procedure, query: q, args: a})
			}
		}
	}
	log.Debug("genotype query", zap.String("sql", query), zap.Int("procedures", len(r.procs)))
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query genotypes: %w", err)
	}
	r.rows = rows
	return r, nil
}

// Next returns the next subject with all of its genotype calls, followed by
// one record per stored procedure row.
func (r *SQLReader) Next() (Record, error) {
	if r.rows != nil {
		rec, ok, err := r.nextSubject()
		if err != nil {
			return Record{}, err
		}
		if ok {
			return rec, nil
		}
		if err := r.rows.Close(); err != nil {
			return Record{}, fmt.Errorf("close genotype rows: %w", err)
		}
		r.rows = nil
	}
	for {
		if r.proc == nil {
			if len(r.procs) == 0 {
				return Record{}, io.EOF
			}
			p := r.procs[0]
			r.procs = r.procs[1:]
			rows, err := r.db.QueryxContext(r.ctx, p.query, p.args...)
			if err != nil {
				return Record{}, fmt.Errorf("call %s: %w", p.name, err)
			}
			r.proc = rows
		}
		if r.proc.Next() {
			var row procedureRow
			if err := r.proc.StructScan(&row); err != nil {
				return Record{}, fmt.Errorf("scan procedure row: %w", err)
			}
			rec, err := subjectOf(row.PatientID, row.Age, row.Inclusion)
			if err != nil {
				return Record{}, err
			}
			rec.Meta = metaOf(row.StudyID, row.StudyLabel, row.Investigator, row.Country, row.Site)
			rec.Calls = []markers.Call{{Marker: row.Marker, Genotype: row.Genotype}}
			return rec, nil
		}
		err := r.proc.Err()
		r.proc.Close()
		r.proc = nil
		if err != nil {
			return Record{}, fmt.Errorf("read procedure rows: %w", err)
		}
	}
}

func (r *SQLReader) scan() (*genotypeRow, bool, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, false, fmt.Errorf("read row %d: %w", r.rowNum+1, err)
		}
		return nil, false, nil
	}
	r.rowNum++
	var row genotypeRow
	if err := r.rows.StructScan(&row); err != nil {
		return nil, false, fmt.Errorf("read row %d: %w", r.rowNum, err)
	}
	return &row, true, nil
}

func (r *SQLReader) nextSubject() (Record, bool, error) {
	first := r.pending
	r.pending = nil
	if first == nil {
		row, ok, err := r.scan()
		if err != nil || !ok {
			return Record{}, false, err
		}
		first = row
	}
	rec, err := subjectOf(first.PatientID, first.Age, first.Inclusion)
	if err != nil {
		return Record{}, false, fmt.Errorf("read row %d: %w", r.rowNum, err)
	}
	rec.Meta = metaOf(first.StudyID, first.StudyLabel, first.Investigator, first.Country, first.Site)
	rec.Calls = append(rec.Calls, markers.Call{Marker: first.marker(), Genotype: first.Genotype})
	for {
		row, ok, err := r.scan()
		if err != nil {
			return Record{}, false, err
		}
		if !ok {
			return rec, true, nil
		}
		if row.SubjectID != first.SubjectID {
			r.pending = row
			return rec, true, nil
		}
		rec.Calls = append(rec.Calls, markers.Call{Marker: row.marker(), Genotype: row.Genotype})
	}
}

// Close releases any open result sets. The database handle stays open.
func (r *SQLReader) Close() error {
	var firstErr error
	if r.rows != nil {
		firstErr = r.rows.Close()
		r.rows = nil
	}
	if r.proc != nil {
		if err := r.proc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.proc = nil
	}
	r.log.Debug("genotype rows read", zap.Int("rows", r.rowNum))
	return firstErr
}
