package token

import (
	"testing"
)

func TestCreateToken(t *testing.T) {
	tests := []struct {
		tokenType TokenType
		lexeme    string
	}{
		{LPA, "("},
		{RCUR, "}"},
		{RANGE_INCL, "..="},
		{OPT_FIELD, "?."},
		{FAT_ARROW, "=>"},
		{SCOPE, "::"},
		{SHL, "<<"},
		{EOF, "EOF"},
	}
	for _, tt := range tests {
		tok := CreateToken(tt.tokenType, 3, 7)
		if tok.Lexeme != tt.lexeme {
			t.Errorf("CreateToken(%s) lexeme = %q, want %q", tt.tokenType, tok.Lexeme, tt.lexeme)
		}
		if tok.Line != 3 || tok.Column != 7 {
			t.Errorf("CreateToken(%s) position = %d:%d, want 3:7", tt.tokenType, tok.Line, tok.Column)
		}
	}
}

func TestCreateLiteralToken(t *testing.T) {
	tok := CreateLiteralToken(INT, int64(123), "123", 3, 10)
	if tok.Literal != int64(123) {
		t.Errorf("Literal = %v, want 123", tok.Literal)
	}
	if got := tok.String(); got != `Token {Type: INT, Value: "123"}` {
		t.Errorf("String() = %s", got)
	}
}

func TestKeywordTable(t *testing.T) {
	keywords := map[string]TokenType{
		"fn":       FUNC,
		"struct":   STRUCT,
		"enum":     ENUM,
		"impl":     IMPL,
		"trait":    TRAIT,
		"defer":    DEFER,
		"try":      TRY,
		"catch":    CATCH,
		"throw":    THROW,
		"comptime": COMPTIME,
		"loop":     LOOP,
	}
	for lexeme, want := range keywords {
		got, ok := KeyWords[lexeme]
		if !ok || got != want {
			t.Errorf("KeyWords[%q] = %v (%v), want %v", lexeme, got, ok, want)
		}
	}
	if _, ok := KeyWords["main"]; ok {
		t.Error("'main' must not be a keyword")
	}
}
