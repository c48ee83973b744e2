package session

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Summary is one session record's parsed header, extracted from the
// marker lines the logger wrote.
type Summary struct {
	Filename      string
	Status        string
	ExceptionType string
	Program       string
	Function      string
	Timestamp     string
	Confidence    string
	Explanation   string
}

// Success reports whether the record describes a successfully applied patch.
func (s Summary) Success() bool { return s.Status == "SUCCESS" }

// Stats aggregates a session directory.
type Stats struct {
	Total       int     `json:"total_sessions"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Reader reads session records out of a directory.
type Reader struct {
	dir string
}

// NewReader creates a reader over dir (default "debug").
func NewReader(dir string) *Reader {
	if dir == "" {
		dir = "debug"
	}
	return &Reader{dir: dir}
}

// List returns session record filenames, newest first. Epoch seconds are
// the filename suffix, so a reverse lexicographic sort orders recent
// records first for same-prefix files. A missing directory is an empty
// listing, not an error.
func (r *Reader) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Read returns the full content of one session record by filename.
func (r *Reader) Read(filename string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, filename))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Summaries parses every record in the directory, newest first.
// Records whose markers cannot be parsed still appear, with the fields
// that were found; the marker grammar is forgiving by construction.
func (r *Reader) Summaries() ([]Summary, error) {
	names, err := r.List()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		content, err := r.Read(name)
		if err != nil {
			continue
		}
		s := parseSummary(content)
		s.Filename = name
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Stats computes aggregate statistics over the directory. The success
// rate is a percentage rounded to one decimal place; an empty directory
// reports zero across the board.
func (r *Reader) Stats() (Stats, error) {
	summaries, err := r.Summaries()
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	st.Total = len(summaries)
	for _, s := range summaries {
		if s.Success() {
			st.Successful++
		} else {
			st.Failed++
		}
	}
	if st.Total > 0 {
		rate := float64(st.Successful) / float64(st.Total) * 100
		st.SuccessRate = math.Round(rate*10) / 10
	}
	return st, nil
}

// BreakdownByException groups sessions by exception type, with per-type
// success rates computed the same way as the overall Stats.
func (r *Reader) BreakdownByException() (map[string]Stats, error) {
	summaries, err := r.Summaries()
	if err != nil {
		return nil, err
	}
	breakdown := make(map[string]Stats)
	for _, s := range summaries {
		key := s.ExceptionType
		if key == "" {
			key = "unknown"
		}
		st := breakdown[key]
		st.Total++
		if s.Success() {
			st.Successful++
		} else {
			st.Failed++
		}
		breakdown[key] = st
	}
	for key, st := range breakdown {
		rate := float64(st.Successful) / float64(st.Total) * 100
		st.SuccessRate = math.Round(rate*10) / 10
		breakdown[key] = st
	}
	return breakdown, nil
}

// parseSummary pulls the marker lines out of a record. Each marker is a
// line of the form "**Key:** value" with optional trailing hard-break
// spaces; values wrapped in backticks are unquoted.
func parseSummary(content string) Summary {
	var s Summary
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := parseMarker(line)
		if !ok {
			continue
		}
		switch key {
		case "Status":
			if s.Status == "" {
				s.Status = value
			}
		case "Type":
			if s.ExceptionType == "" {
				s.ExceptionType = value
			}
		case "Program":
			if s.Program == "" {
				s.Program = value
			}
		case "Function":
			if s.Function == "" {
				s.Function = value
			}
		case "Timestamp":
			if s.Timestamp == "" {
				s.Timestamp = value
			}
		case "Confidence":
			if s.Confidence == "" {
				s.Confidence = value
			}
		case "Explanation":
			if s.Explanation == "" {
				s.Explanation = value
			}
		}
	}
	return s
}

func parseMarker(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "- ")
	if !strings.HasPrefix(line, "**") {
		return "", "", false
	}
	rest := line[2:]
	idx := strings.Index(rest, ":**")
	if idx < 0 {
		return "", "", false
	}
	key = rest[:idx]
	value = strings.TrimSpace(rest[idx+3:])
	value = strings.Trim(value, "`")
	return key, value, true
}
