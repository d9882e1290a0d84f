package pipeline

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	fencedSQLRe     = regexp.MustCompile("(?is)```sql\\b(.*?)```")
	bareSelectRe    = regexp.MustCompile(`(?is)\bSELECT\b.*?;`)
	errNoSQL        = errors.New("no SQL statement found in model output")
	errEmptySQL     = errors.New("empty statement")
	errMultiSQL     = errors.New("more than one statement")
	errNotSelect    = errors.New("statement is not a SELECT")
	errUnterminated = errors.New("unterminated quote or comment")
)

// SQL is a validated read-only statement ready to execute.
type SQL struct {
	Text string
	Args []any
}

// ExtractSQL isolates a single SELECT statement from raw model output. It
// prefers the first ```sql fenced block, then the first "SELECT ... ;"
// substring. The trailing semicolon is stripped.
func ExtractSQL(raw string) (SQL, error) {
	var candidate string
	if m := fencedSQLRe.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else if m := bareSelectRe.FindString(raw); m != "" {
		candidate = m
	} else {
		return SQL{}, newError(KindNoSQLFound, "extract_sql", errNoSQL)
	}

	text := cleanSQL(candidate)
	if err := validateSelect(text); err != nil {
		return SQL{}, &Error{Kind: KindInvalidSQL, Op: "extract_sql", SQL: text, Err: err}
	}
	return SQL{Text: text}, nil
}

// ParseSQL validates a caller-supplied statement with the same rules applied
// to model output.
func ParseSQL(text string) (SQL, error) {
	text = cleanSQL(text)
	if err := validateSelect(text); err != nil {
		return SQL{}, &Error{Kind: KindInvalidSQL, Op: "parse_sql", SQL: text, Err: err}
	}
	return SQL{Text: text}, nil
}

// cleanSQL trims whitespace and any trailing semicolons.
func cleanSQL(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

func validateSelect(s string) error {
	stmts, err := splitStatements(s)
	if err != nil {
		return err
	}
	switch len(stmts) {
	case 0:
		return errEmptySQL
	case 1:
	default:
		return errMultiSQL
	}
	if !strings.EqualFold(firstKeyword(stmts[0]), "SELECT") {
		return errNotSelect
	}
	return nil
}

// splitStatements splits s on semicolons that are outside string literals,
// quoted identifiers and comments. Statements holding only whitespace or
// comments are dropped.
func splitStatements(s string) ([]string, error) {
	var (
		stmts      []string
		start      int
		hasContent bool
	)
	flush := func(end int) {
		if hasContent {
			stmts = append(stmts, strings.TrimSpace(s[start:end]))
		}
		start, hasContent = end+1, false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			j := strings.IndexByte(s[i+1:], closer)
			if j < 0 {
				return nil, errUnterminated
			}
			i += j + 1
			hasContent = true
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				i = len(s)
			} else {
				i += j
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return nil, errUnterminated
			}
			i += j + 3
		case c == ';':
			flush(i)
		case !unicode.IsSpace(rune(c)):
			hasContent = true
		}
	}
	flush(len(s))
	return stmts, nil
}

// firstKeyword returns the first word of s, skipping comments and opening parentheses.
func firstKeyword(s string) string {
	i := 0
	for i < len(s) {
		switch {
		case unicode.IsSpace(rune(s[i])) || s[i] == '(':
			i++
		case strings.HasPrefix(s[i:], "--"):
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				return ""
			}
			i += j + 1
		case strings.HasPrefix(s[i:], "/*"):
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return ""
			}
			i += j + 4
		default:
			j := i
			for j < len(s) && (unicode.IsLetter(rune(s[j])) || s[j] == '_') {
				j++
			}
			return s[i:j]
		}
	}
	return ""
}
