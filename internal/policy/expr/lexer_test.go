package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(tokens []Token) []TokenType {
	var out []TokenType
	for _, t := range tokens {
		if t.Type != EOF {
			out = append(out, t.Type)
		}
	}
	return out
}

func values(tokens []Token) []string {
	var out []string
	for _, t := range tokens {
		if t.Type != EOF {
			out = append(out, t.Value)
		}
	}
	return out
}

func TestTokenizeEmpty(t *testing.T) {
	tokens, err := Tokenize("")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, EOF, tokens[0].Type)
}

func TestTokenizeWhitespaceOnly(t *testing.T) {
	tokens, err := Tokenize("   \t\n  ")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
}

func TestTokenizeIdentifiers(t *testing.T) {
	for _, input := range []string{"audio", "not_commentary", "dts-hd", "h265"} {
		tokens, err := Tokenize(input)
		require.NoError(t, err, input)
		assert.Equal(t, []TokenType{IDENT}, types(tokens), input)
		assert.Equal(t, []string{input}, values(tokens), input)
	}
}

func TestTokenizeKeywords(t *testing.T) {
	cases := map[string]TokenType{
		"and": KW_AND,
		"or":  KW_OR,
		"not": KW_NOT,
		"in":  OP_IN,
	}
	for input, want := range cases {
		tokens, err := Tokenize(input)
		require.NoError(t, err)
		assert.Equal(t, []TokenType{want}, types(tokens), input)
	}
}

func TestTokenizeBooleans(t *testing.T) {
	tokens, err := Tokenize("true false")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{BOOLEAN, BOOLEAN}, types(tokens))
}

func TestKeywordsAreCaseSensitive(t *testing.T) {
	// Uppercase keywords lex as identifiers.
	for _, input := range []string{"AND", "True", "NOT"} {
		tokens, err := Tokenize(input)
		require.NoError(t, err)
		assert.Equal(t, []TokenType{IDENT}, types(tokens), input)
	}
}

func TestTokenizeNumbers(t *testing.T) {
	tokens, err := Tokenize("42 3.14 0")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{NUMBER, NUMBER, NUMBER}, types(tokens))
	assert.Equal(t, []string{"42", "3.14", "0"}, values(tokens))
}

func TestTokenizeSizeLiterals(t *testing.T) {
	for _, input := range []string{"15M", "192k", "1GB", "1.5GB", "500MB"} {
		tokens, err := Tokenize(input)
		require.NoError(t, err, input)
		assert.Equal(t, []TokenType{SIZE_LITERAL}, types(tokens), input)
		assert.Equal(t, []string{input}, values(tokens), input)
	}
}

func TestTokenizeStrings(t *testing.T) {
	tokens, err := Tokenize(`"hello world" 'single'`)
	require.NoError(t, err)
	assert.Equal(t, []TokenType{STRING, STRING}, types(tokens))
	assert.Equal(t, []string{"hello world", "single"}, values(tokens))
}

func TestTokenizeUnterminatedString(t *testing.T) {
	_, err := Tokenize(`"oops`)
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 1, lexErr.Pos)
}

func TestTokenizeOperators(t *testing.T) {
	tokens, err := Tokenize("== != < <= > >=")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{OP_EQ, OP_NEQ, OP_LT, OP_LTE, OP_GT, OP_GTE}, types(tokens))
}

func TestTokenizeSingleEqualsFails(t *testing.T) {
	_, err := Tokenize("language = eng")
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
}

func TestTokenizeFullExpression(t *testing.T) {
	tokens, err := Tokenize("exists(audio, language==eng) and count(audio, not_commentary)>=2")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{
		IDENT, LPAREN, IDENT, COMMA, IDENT, OP_EQ, IDENT, RPAREN,
		KW_AND,
		IDENT, LPAREN, IDENT, COMMA, IDENT, RPAREN, OP_GTE, NUMBER,
	}, types(tokens))
}

func TestTokenizeList(t *testing.T) {
	tokens, err := Tokenize("[aac, ac3]")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{LBRACKET, IDENT, COMMA, IDENT, RBRACKET}, types(tokens))
}

func TestLexErrorPosition(t *testing.T) {
	_, err := Tokenize("audio @ eng")
	var lexErr *LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, 7, lexErr.Pos)
}
