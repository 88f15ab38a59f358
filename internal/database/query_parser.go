package database

import (
	"bufio"
	"strings"
)

// parseNamedQueries extracts named queries from SQL content.
// Queries are defined with the -- name: QueryName convention.
func parseNamedQueries(content string) map[string]string {
	queries := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(content))

	var currentQuery strings.Builder
	var currentName string

	flush := func() {
		if currentName != "" && currentQuery.Len() > 0 {
			queries[currentName] = strings.TrimSpace(currentQuery.String())
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "-- name:") {
			flush()
			currentName = strings.TrimSpace(strings.TrimPrefix(line, "-- name:"))
			currentQuery.Reset()
			continue
		}

		if currentName == "" || line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if currentQuery.Len() > 0 {
			currentQuery.WriteString("\n")
		}
		currentQuery.WriteString(line)
	}

	flush()
	return queries
}
