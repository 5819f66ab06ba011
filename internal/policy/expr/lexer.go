package expr

import "strings"

// keywords are recognized in lowercase only; any other casing lexes as an
// identifier.
var keywords = map[string]TokenType{
	"and":   KW_AND,
	"or":    KW_OR,
	"not":   KW_NOT,
	"in":    OP_IN,
	"true":  BOOLEAN,
	"false": BOOLEAN,
}

var sizeUnits = []string{"kb", "mb", "gb", "tb", "k", "m", "g", "t"}

// Tokenize lexes an expression string. The returned slice always ends
// with an EOF token.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue

		case c == '(':
			tokens = append(tokens, Token{Type: LPAREN, Value: "(", Pos: i + 1})
			i++
		case c == ')':
			tokens = append(tokens, Token{Type: RPAREN, Value: ")", Pos: i + 1})
			i++
		case c == '[':
			tokens = append(tokens, Token{Type: LBRACKET, Value: "[", Pos: i + 1})
			i++
		case c == ']':
			tokens = append(tokens, Token{Type: RBRACKET, Value: "]", Pos: i + 1})
			i++
		case c == ',':
			tokens = append(tokens, Token{Type: COMMA, Value: ",", Pos: i + 1})
			i++

		case c == '=':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, Token{Type: OP_EQ, Value: "==", Pos: i + 1})
				i += 2
			} else {
				return nil, &LexError{Pos: i + 1, Message: "expected '==' (single '=' is not an operator)"}
			}
		case c == '!':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, Token{Type: OP_NEQ, Value: "!=", Pos: i + 1})
				i += 2
			} else {
				return nil, &LexError{Pos: i + 1, Message: "expected '!=' after '!'"}
			}
		case c == '<':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, Token{Type: OP_LTE, Value: "<=", Pos: i + 1})
				i += 2
			} else {
				tokens = append(tokens, Token{Type: OP_LT, Value: "<", Pos: i + 1})
				i++
			}
		case c == '>':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, Token{Type: OP_GTE, Value: ">=", Pos: i + 1})
				i += 2
			} else {
				tokens = append(tokens, Token{Type: OP_GT, Value: ">", Pos: i + 1})
				i++
			}

		case c == '"' || c == '\'':
			tok, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next

		case c >= '0' && c <= '9':
			tok, next := lexNumber(input, i)
			tokens = append(tokens, tok)
			i = next

		case isIdentStart(c):
			tok, next := lexIdent(input, i)
			tokens = append(tokens, tok)
			i = next

		default:
			return nil, &LexError{Pos: i + 1, Message: "unexpected character " + string(c)}
		}
	}

	tokens = append(tokens, Token{Type: EOF, Pos: n + 1})
	return tokens, nil
}

func lexString(input string, start int) (Token, int, error) {
	quote := input[start]
	i := start + 1
	var sb strings.Builder
	for i < len(input) {
		c := input[i]
		if c == quote {
			return Token{Type: STRING, Value: sb.String(), Pos: start + 1}, i + 1, nil
		}
		if c == '\\' && i+1 < len(input) {
			i++
			c = input[i]
		}
		sb.WriteByte(c)
		i++
	}
	return Token{}, 0, &LexError{Pos: start + 1, Message: "unterminated string literal"}
}

// lexNumber lexes a numeric literal, promoting it to a size literal when a
// recognized unit suffix follows the digits (15M, 192k, 1.5GB).
func lexNumber(input string, start int) (Token, int) {
	i := start
	for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
		i++
	}
	numEnd := i
	for i < len(input) && isLetter(input[i]) {
		i++
	}
	if i > numEnd {
		suffix := strings.ToLower(input[numEnd:i])
		if suffix == "b" {
			return Token{Type: SIZE_LITERAL, Value: input[start:i], Pos: start + 1}, i
		}
		for _, unit := range sizeUnits {
			if suffix == unit {
				return Token{Type: SIZE_LITERAL, Value: input[start:i], Pos: start + 1}, i
			}
		}
		// Not a size unit: treat the whole run as an identifier (h265).
		identEnd := i
		for identEnd < len(input) && isIdentChar(input[identEnd]) {
			identEnd++
		}
		return Token{Type: IDENT, Value: input[start:identEnd], Pos: start + 1}, identEnd
	}
	return Token{Type: NUMBER, Value: input[start:numEnd], Pos: start + 1}, numEnd
}

// lexIdent lexes an identifier, which may contain underscores, digits, and
// interior hyphens (dts-hd).
func lexIdent(input string, start int) (Token, int) {
	i := start
	for i < len(input) && isIdentChar(input[i]) {
		i++
	}
	// Trailing hyphens belong to the next token, not the identifier.
	for i > start && input[i-1] == '-' {
		i--
	}
	value := input[start:i]
	if kw, ok := keywords[value]; ok {
		return Token{Type: kw, Value: value, Pos: start + 1}, i
	}
	return Token{Type: IDENT, Value: value, Pos: start + 1}, i
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '-'
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
