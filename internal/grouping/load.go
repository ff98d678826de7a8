package grouping

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadAgeGroups reads an age group file. Each line holds
// LOWER<TAB>UPPER<TAB>LABEL; "None" (or an empty field) marks an open bound
// and lines starting with '#' are ignored.
func LoadAgeGroups(path string) ([]AgeGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age groups: %w", err)
	}
	defer f.Close()
	return ParseAgeGroups(f, filepath.Base(path))
}

// ParseAgeGroups parses age groups from r; name is used in error messages.
func ParseAgeGroups(r io.Reader, name string) ([]AgeGroup, error) {
	var groups []AgeGroup
	err := eachLine(r, name, func(line int, cols []string) error {
		lower, upper, err := parseBounds(name, line, cols[0], cols[1])
		if err != nil {
			return err
		}
		label := strings.TrimSpace(cols[2])
		if label == "" {
			return &ConfigError{File: name, Line: line, Msg: "empty age group label"}
		}
		if strings.EqualFold(label, "All") {
			return &ConfigError{File: name, Line: line, Msg: `label "All" is reserved`}
		}
		g := AgeGroup{Range: Range{Lower: lower, Upper: upper}, Label: label}
		if err := g.validate(); err != nil {
			return &ConfigError{File: name, Line: line, Msg: fmt.Sprintf("age group %q: %v", label, err)}
		}
		groups = append(groups, g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// LoadCopyNumberBins reads a copy number bin file with lines of
// NAME<TAB>LOWER<TAB>UPPER.
func LoadCopyNumberBins(path string) ([]CopyNumberBin, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open copy number groups: %w", err)
	}
	defer f.Close()
	return ParseCopyNumberBins(f, filepath.Base(path))
}

// ParseCopyNumberBins parses copy number bins from r.
func ParseCopyNumberBins(r io.Reader, name string) ([]CopyNumberBin, error) {
	var bins []CopyNumberBin
	err := eachLine(r, name, func(line int, cols []string) error {
		binName := strings.TrimSpace(cols[0])
		if binName == "" {
			return &ConfigError{File: name, Line: line, Msg: "empty copy number group name"}
		}
		lower, upper, err := parseBounds(name, line, cols[1], cols[2])
		if err != nil {
			return err
		}
		b := CopyNumberBin{Name: binName, Range: Range{Lower: lower, Upper: upper}}
		if err := b.validate(); err != nil {
			return &ConfigError{File: name, Line: line, Msg: fmt.Sprintf("copy number group %q: %v", binName, err)}
		}
		bins = append(bins, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bins, nil
}

func eachLine(r io.Reader, name string, fn func(line int, cols []string) error) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r\n")
		if strings.HasPrefix(raw, "#") || strings.TrimSpace(raw) == "" {
			continue
		}
		cols := strings.Split(raw, "\t")
		if len(cols) != 3 {
			return &ConfigError{File: name, Line: line, Msg: fmt.Sprintf("want 3 tab-separated columns, got %d", len(cols))}
		}
		if err := fn(line, cols); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

func parseBounds(name string, line int, lo, hi string) (*float64, *float64, error) {
	lower, err := parseBound(lo)
	if err != nil {
		return nil, nil, &ConfigError{File: name, Line: line, Msg: fmt.Sprintf("lower bound: %v", err)}
	}
	upper, err := parseBound(hi)
	if err != nil {
		return nil, nil, &ConfigError{File: name, Line: line, Msg: fmt.Sprintf("upper bound: %v", err)}
	}
	return lower, upper, nil
}

func parseBound(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "None") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
