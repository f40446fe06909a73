package lexer

import (
	"reflect"
	"testing"

	"cot/token"
)

func runTestSuccess(t *testing.T, scanner *Lexer, expected []token.Token) {
	t.Helper()

	got := scanner.Scan()
	if len(scanner.Errors()) > 0 {
		t.Errorf("scanner.Scan() raised errors: %v", scanner.Errors())
	}

	if len(got) != len(expected) {
		t.Fatalf("scanner.Scan() produced %d tokens, want %d: %v", len(got), len(expected), got)
	}
	for i := range expected {
		if got[i].TokenType != expected[i].TokenType {
			t.Errorf("token %d has type %s, want %s", i, got[i].TokenType, expected[i].TokenType)
		}
		if !reflect.DeepEqual(got[i].Literal, expected[i].Literal) {
			t.Errorf("token %d has literal %v, want %v", i, got[i].Literal, expected[i].Literal)
		}
	}
}

func kinds(tokens []token.Token) []token.TokenType {
	types := make([]token.TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.TokenType
	}
	return types
}

func TestOperatorsSuccess(t *testing.T) {
	expected := []token.Token{
		{TokenType: token.EQUAL_EQUAL},
		{TokenType: token.DIV},
		{TokenType: token.ASSIGN},
		{TokenType: token.MULT},
		{TokenType: token.ADD},
		{TokenType: token.LARGER},
		{TokenType: token.SUB},
		{TokenType: token.LESS},
		{TokenType: token.NOT_EQUAL},
		{TokenType: token.LESS_EQUAL},
		{TokenType: token.LARGER_EQUAL},
		{TokenType: token.BANG},
		{TokenType: token.EOF},
	}
	scanner := New("== / = * + > - < != <= >= !")
	runTestSuccess(t, scanner, expected)
}

func TestMaxMunchOperators(t *testing.T) {
	tests := []struct {
		source   string
		expected []token.TokenType
	}{
		{"..=", []token.TokenType{token.RANGE_INCL, token.EOF}},
		{"..", []token.TokenType{token.RANGE, token.EOF}},
		{"?.", []token.TokenType{token.OPT_FIELD, token.EOF}},
		{"?:", []token.TokenType{token.OPT_ELSE, token.EOF}},
		{"=>", []token.TokenType{token.FAT_ARROW, token.EOF}},
		{"->", []token.TokenType{token.ARROW, token.EOF}},
		{"::", []token.TokenType{token.SCOPE, token.EOF}},
		{"<<>>", []token.TokenType{token.SHL, token.SHR, token.EOF}},
		{"&&&", []token.TokenType{token.AND_AND, token.AMP, token.EOF}},
		{"|||", []token.TokenType{token.OR_OR, token.PIPE, token.EOF}},
		{"1..5", []token.TokenType{token.INT, token.RANGE, token.INT, token.EOF}},
		{"1..=5", []token.TokenType{token.INT, token.RANGE_INCL, token.INT, token.EOF}},
	}

	for _, tt := range tests {
		scanner := New(tt.source)
		got := kinds(scanner.Scan())
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("Scan(%q) = %v, want %v", tt.source, got, tt.expected)
		}
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		source   string
		expected any
	}{
		{"42", int64(42)},
		{"0x2A", int64(42)},
		{"0b101010", int64(42)},
		{"3.5", float64(3.5)},
		{"1e3", float64(1000)},
		{"2.5e-1", float64(0.25)},
	}

	for _, tt := range tests {
		scanner := New(tt.source)
		got := scanner.Scan()
		if len(scanner.Errors()) > 0 {
			t.Fatalf("Scan(%q) raised errors: %v", tt.source, scanner.Errors())
		}
		if len(got) != 2 {
			t.Fatalf("Scan(%q) produced %d tokens, want 2", tt.source, len(got))
		}
		if !reflect.DeepEqual(got[0].Literal, tt.expected) {
			t.Errorf("Scan(%q) literal = %v (%T), want %v (%T)", tt.source, got[0].Literal, got[0].Literal, tt.expected, tt.expected)
		}
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	scanner := New("fn main2 struct enum impl defer try catch throw value_1")
	expected := []token.TokenType{
		token.FUNC, token.IDENTIFIER, token.STRUCT, token.ENUM, token.IMPL,
		token.DEFER, token.TRY, token.CATCH, token.THROW, token.IDENTIFIER,
		token.EOF,
	}
	got := kinds(scanner.Scan())
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Scan() = %v, want %v", got, expected)
	}
}

func TestStringEscapes(t *testing.T) {
	scanner := New(`"a\tb\n\x41\0"`)
	got := scanner.Scan()
	if len(scanner.Errors()) > 0 {
		t.Fatalf("Scan() raised errors: %v", scanner.Errors())
	}
	want := "a\tb\nA\x00"
	if got[0].Literal != want {
		t.Errorf("string literal = %q, want %q", got[0].Literal, want)
	}
}

func TestStringInterpolation(t *testing.T) {
	scanner := New(`"a ${x + 1} b"`)
	expected := []token.TokenType{
		token.STRING_CONTENT,
		token.INTERP_START,
		token.IDENTIFIER,
		token.ADD,
		token.INT,
		token.INTERP_END,
		token.STRING_CONTENT,
		token.EOF,
	}
	got := scanner.Scan()
	if len(scanner.Errors()) > 0 {
		t.Fatalf("Scan() raised errors: %v", scanner.Errors())
	}
	if !reflect.DeepEqual(kinds(got), expected) {
		t.Errorf("Scan() = %v, want %v", kinds(got), expected)
	}
	if got[0].Literal != "a " || got[6].Literal != " b" {
		t.Errorf("segments = %q, %q, want \"a \", \" b\"", got[0].Literal, got[6].Literal)
	}
}

func TestComments(t *testing.T) {
	scanner := New("1 // line comment\n/* block\ncomment */ 2")
	expected := []token.TokenType{token.INT, token.INT, token.EOF}
	got := kinds(scanner.Scan())
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Scan() = %v, want %v", got, expected)
	}
}

func TestPositions(t *testing.T) {
	scanner := New("var x\n  = 1")
	got := scanner.Scan()
	if got[0].Line != 1 || got[0].Column != 1 {
		t.Errorf("var position = %d:%d, want 1:1", got[0].Line, got[0].Column)
	}
	if got[2].Line != 2 || got[2].Column != 3 {
		t.Errorf("= position = %d:%d, want 2:3", got[2].Line, got[2].Column)
	}
}

func TestErrorTokens(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"unterminated string", `"abc`},
		{"unknown escape", `"\q"`},
		{"unterminated block comment", "/* forever"},
		{"stray character", "@"},
		{"empty hex literal", "0x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := New(tt.source)
			got := scanner.Scan()
			if len(scanner.Errors()) == 0 {
				t.Fatalf("Scan(%q) reported no errors", tt.source)
			}
			// the stream always terminates with EOF regardless of errors
			if got[len(got)-1].TokenType != token.EOF {
				t.Errorf("Scan(%q) does not end with EOF", tt.source)
			}
		})
	}
}

func TestEmptySource(t *testing.T) {
	scanner := New("")
	got := scanner.Scan()
	if len(got) != 1 || got[0].TokenType != token.EOF {
		t.Errorf("Scan(\"\") = %v, want a single EOF token", got)
	}
}
