package interp

import (
	"strings"

	"github.com/jimsnab/go-cns-console/cnserr"
)

const (
	commentMarker   = '#'
	statementMarker = ';'
	quoteMarker     = '"'
	escapeMarker    = '\\'
	variableMarker  = "$"
)

type (
	token struct {
		text   string
		quoted bool
	}
)

// Splits a trimmed input line into statements, dropping a trailing comment.
// Separators and comment markers inside double quotes are literal.
func splitStatements(line string) (stmts []string, err error) {
	line = strings.TrimSpace(line)

	var cur strings.Builder
	inQuote := false
	escaped := false

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

scan:
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case inQuote && r == escapeMarker:
			escaped = true
		case r == quoteMarker:
			inQuote = !inQuote
		case !inQuote && r == commentMarker:
			break scan
		case !inQuote && r == statementMarker:
			flush()
			continue
		}
		cur.WriteRune(r)
	}

	if inQuote {
		return nil, cnserr.New(cnserr.KindArgument, "unterminated quote")
	}
	flush()
	return
}

// Splits a statement on whitespace. A double-quoted span is one token with
// the quotes removed, and backslash escapes the next character inside it.
func tokenize(stmt string) (tokens []token, err error) {
	var cur strings.Builder
	inToken := false
	inQuote := false
	quoted := false
	escaped := false

	flush := func() {
		if inToken {
			tokens = append(tokens, token{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		inToken = false
		quoted = false
	}

	for _, r := range stmt {
		switch {
		case escaped:
			switch r {
			case 'n':
				cur.WriteRune('\n')
			case 't':
				cur.WriteRune('\t')
			default:
				cur.WriteRune(r)
			}
			escaped = false

		case inQuote && r == escapeMarker:
			escaped = true

		case r == quoteMarker:
			inQuote = !inQuote
			inToken = true
			quoted = true

		case !inQuote && (r == ' ' || r == '\t'):
			flush()

		default:
			cur.WriteRune(r)
			inToken = true
		}
	}

	if inQuote {
		return nil, cnserr.New(cnserr.KindArgument, "unterminated quote")
	}
	flush()
	return
}
