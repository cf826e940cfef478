package query

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrForbiddenStatement    = errors.New("허용되지 않는 SQL 명령입니다. SELECT만 사용 가능합니다.")
	ErrInvalidStatementShape = errors.New("SELECT 또는 WITH(CTE)로 시작하는 쿼리만 허용됩니다.")
)

var forbiddenKeywords = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|ALTER|TRUNCATE|CREATE|GRANT|REVOKE)\b`)

// Validate applies the read-only keyword allowlist. It is lexical: a
// forbidden word anywhere, including inside a string literal, rejects the
// statement.
func Validate(sql string) (string, error) {
	if forbiddenKeywords.MatchString(sql) {
		return "", ErrForbiddenStatement
	}
	head := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(head, "SELECT") && !strings.HasPrefix(head, "WITH") {
		return "", ErrInvalidStatementShape
	}
	return sql, nil
}
