package nl2sql

import (
	"regexp"
	"strings"
)

var (
	fencedBlockPattern   = regexp.MustCompile("(?s)```(?:sql)?\\s*\\n?(.*?)```")
	statementStart       = regexp.MustCompile(`(?i)\b(SELECT|WITH)\b`)
	lineCommentPattern   = regexp.MustCompile(`(?m)--.*$`)
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingProsePattern = regexp.MustCompile(`\n\s*\n\s*[가-힣A-Za-z](?s:.*)$`)
	trailingTerminator   = regexp.MustCompile(`;\s*$`)
)

// CleanSQL extracts the statement from a raw model response. The steps run in
// a fixed order: fenced block, leading prose, comments, trailing prose after a
// blank line, trailing terminator.
//
// The trailing-prose step cuts at the first blank line followed by a letter,
// so statements with blank lines inside string literals are truncated. When
// neither SELECT nor WITH appears the leading text is kept as is.
func CleanSQL(raw string) string {
	sql := strings.TrimSpace(raw)

	if match := fencedBlockPattern.FindStringSubmatch(sql); match != nil {
		sql = strings.TrimSpace(match[1])
	}

	if loc := statementStart.FindStringIndex(sql); loc != nil && loc[0] > 0 {
		sql = sql[loc[0]:]
	}

	sql = lineCommentPattern.ReplaceAllString(sql, "")
	sql = blockCommentPattern.ReplaceAllString(sql, "")

	sql = trailingProsePattern.ReplaceAllString(sql, "")

	sql = trailingTerminator.ReplaceAllString(sql, "")
	return strings.TrimSpace(sql)
}
