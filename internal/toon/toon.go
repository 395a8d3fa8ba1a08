// Package toon renders build reports and dependency listings in TOON
// (Token-Oriented Object Notation).
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/igen/internal/build"
	"github.com/phobologic/igen/internal/graph"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeReport renders a build report. manifest names the manifest the
// report was built from.
func EncodeReport(manifest string, r *build.Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("manifest: %s", encodeValue(manifest)))

	var rows [][]string
	for i := range r.Results {
		res := &r.Results[i]
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		rows = append(rows, []string{
			res.GenPath,
			res.State.String(),
			strconv.Itoa(res.Sources),
			strconv.Itoa(res.Functions),
			errText,
		})
	}
	parts = append(parts, formatTabular("interfaces", []string{"gen_path", "state", "sources", "functions", "error"}, rows))

	counts := r.Counts()
	parts = append(parts, formatTabular("summary", []string{"clean", "rewritten", "unchanged", "failed"}, [][]string{{
		strconv.Itoa(counts[build.StateClean]),
		strconv.Itoa(counts[build.StateRewritten]),
		strconv.Itoa(counts[build.StateUnchanged]),
		strconv.Itoa(counts[build.StateFailed]),
	}}))

	return strings.Join(parts, "\n")
}

// EncodeDeps renders the dependency index.
func EncodeDeps(idx *graph.Index) string {
	deps := idx.Dependencies()

	var depRows [][]string
	for i := range deps {
		d := &deps[i]
		depRows = append(depRows, []string{d.Target, d.Source, string(d.Kind)})
	}
	return formatTabular("dependencies", []string{"gen_path", "file", "kind"}, depRows)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
