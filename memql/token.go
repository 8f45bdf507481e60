package memql

import (
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"

	"github.com/4thel00z/memcore/record"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
	tokStar
	tokEq  // == or =
	tokNeq // !=
	tokLt
	tokLte
	tokGt
	tokGte
)

// keywords are matched case-insensitively against ident tokens.
const (
	kwSelect   = "SELECT"
	kwSimilar  = "SIMILAR"
	kwTo       = "TO"
	kwWhere    = "WHERE"
	kwAnd      = "AND"
	kwOr       = "OR"
	kwContains = "CONTAINS"
	kwOrder    = "ORDER"
	kwBy       = "BY"
	kwAsc      = "ASC"
	kwDesc     = "DESC"
	kwLimit    = "LIMIT"
	kwCreate   = "CREATE"
	kwMem      = "MEM"
	kwUpdate   = "UPDATE"
	kwSet      = "SET"
	kwDelete   = "DELETE"
	kwTrue     = "TRUE"
	kwFalse    = "FALSE"
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset into the query
}

func (t token) is(keyword string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, keyword)
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case c == '*':
			tokens = append(tokens, token{tokStar, "*", i})
			i++

		case c == '=':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tokEq, "==", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokEq, "=", i})
				i++
			}
		case c == '!':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tokNeq, "!=", i})
				i += 2
			} else {
				return nil, syntaxErr("unexpected character", i, string(c))
			}
		case c == '<':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tokLte, "<=", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokLt, "<", i})
				i++
			}
		case c == '>':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tokGte, ">=", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokGt, ">", i})
				i++
			}

		case c == '"' || c == '\'':
			str, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, str, i})
			i = next

		case c >= '0' && c <= '9' || c == '-' && i+1 < n && input[i+1] >= '0' && input[i+1] <= '9':
			start := i
			i++
			for i < n && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, input[start:i], start})

		case isIdentStart(rune(c)):
			start := i
			for i < n && isIdentPart(rune(input[i])) {
				i++
			}
			tokens = append(tokens, token{tokIdent, input[start:i], start})

		default:
			return nil, syntaxErr("unexpected character", i, string(c))
		}
	}

	tokens = append(tokens, token{tokEOF, "", n})
	return tokens, nil
}

func lexString(input string, start int) (string, int, error) {
	quote := input[start]
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		if c == '\\' && i+1 < len(input) {
			sb.WriteByte(input[i+1])
			i += 2
			continue
		}
		if c == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, syntaxErr("unterminated string literal", start, string(quote))
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

// Dots stay inside ident tokens so metadata.<key> lexes as one reference.
func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func syntaxErr(msg string, pos int, tok string) error {
	return goerr.Wrap(record.ErrSyntax, msg, goerr.Value("pos", pos), goerr.Value("token", tok))
}
