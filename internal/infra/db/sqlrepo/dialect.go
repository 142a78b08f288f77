// Package sqlrepo is the history repository shared by the SQL drivers.
// Drivers differ only in placeholders, upsert syntax and column types.
package sqlrepo

import (
	"fmt"
	"strings"
)

type Dialect struct {
	Name string
	// Placeholder returns the n-th (1 based) bind marker
	Placeholder func(n int) string
	// Upsert is the conflict clause appended to the insert
	Upsert string
	// TextType is used for long columns
	TextType string
	// KeyType is used for the url_key primary key
	KeyType string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

var updatedColumns = []string{"id", "url", "domain", "title", "risk_score", "risk_level", "finding_count", "analyzed_at", "result_json"}

func upsertSet(format string) string {
	parts := make([]string, len(updatedColumns))
	for i, c := range updatedColumns {
		parts[i] = fmt.Sprintf(format, c, c)
	}
	return strings.Join(parts, ", ")
}

var (
	MySQL = Dialect{
		Name:        "mysql",
		Placeholder: questionMark,
		Upsert:      "ON DUPLICATE KEY UPDATE " + upsertSet("%s=VALUES(%s)"),
		TextType:    "LONGTEXT",
		KeyType:     "CHAR(64)",
	}
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: dollar,
		Upsert:      "ON CONFLICT (url_key) DO UPDATE SET " + upsertSet("%s=EXCLUDED.%s"),
		TextType:    "TEXT",
		KeyType:     "CHAR(64)",
	}
	SQLite = Dialect{
		Name:        "sqlite3",
		Placeholder: questionMark,
		Upsert:      "ON CONFLICT(url_key) DO UPDATE SET " + upsertSet("%s=excluded.%s"),
		TextType:    "TEXT",
		KeyType:     "TEXT",
	}
)

// bind rewrites ? markers for the dialect.
func (d Dialect) bind(q string) string {
	if d.Placeholder(1) == "?" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
