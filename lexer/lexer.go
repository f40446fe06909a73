package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"cot/token"
)

func isLetter(char rune) bool {
	return rune('a') <= char && char <= rune('z') || rune('A') <= char && char <= rune('Z') || char == rune('_')
}

func isNumber(char rune) bool {
	return rune('0') <= char && char <= rune('9')
}

func isHexDigit(char rune) bool {
	return isNumber(char) || 'a' <= char && char <= 'f' || 'A' <= char && char <= 'F'
}

// Lexer represents a lexical scanner for processing input text into tokens.
// It maintains the current scanning state, including the position within the
// input, the current character, and metadata for line/column tracking.
// The Lexer also records tokens and errors encountered during scanning.
//
// Scanning never fails fatally: malformed input produces ERROR tokens whose
// Literal holds a diagnostic message, and scanning resumes at the next
// plausible boundary.
type Lexer struct {
	// rune slice of the input string being scanned.
	characters []rune

	// Total number of runes in the input.
	totalChars int

	// Stores the sequence of tokens produced during lexing.
	tokens []token.Token

	// The index of the character that was previously read
	position int

	// The current character being examined.
	currentChar rune

	// The index of the next position where the next character
	// will be read
	readPosition int

	// Tracks the number of lines processed (incremented on newline).
	lineCount int32

	// Tracks the character's position within the current line.
	// Gets reset on every new line back to 1
	column int

	// Stores any scanning errors that occur during lexing.
	errors []error
}

// Initializes and returns a new Lexer instance.
//
// Parameters:
//   - input: string
//     The the source code as a string to be lexically analyzed.
//
// Returns:
//   - *Lexer: A pointer to a newly created Lexer instance.
func New(input string) *Lexer {
	lexer := &Lexer{
		characters: []rune(input),
		lineCount:  1,
		column:     0,
	}
	lexer.totalChars = len(lexer.characters)
	lexer.readChar()
	return lexer
}

// Errors returns all scanning errors recorded so far. Each error mirrors an
// ERROR token already present in the token stream.
func (lexer *Lexer) Errors() []error {
	return lexer.errors
}

// Determines if the lexer has finished scanning all the source code.
//
// Returns:
//   - bool: true if the lexer has finished scanning, false otherwise
func (lexer *Lexer) isFinished() bool {
	return lexer.position >= lexer.totalChars
}

// Reads the character at the `Lexer`'s `readPosition`. If there
// are no more characters to read, it sets the `Lexer`'s current
// character to null.
func (lexer *Lexer) readChar() {
	if lexer.currentChar == rune('\n') {
		lexer.lineCount++
		lexer.column = 0
	}
	if lexer.readPosition >= lexer.totalChars {
		lexer.currentChar = rune(0)
	} else {
		lexer.currentChar = lexer.characters[lexer.readPosition]
	}
	lexer.position = lexer.readPosition
	lexer.readPosition++
	lexer.column++
}

// Returns the character at the `Lexer`s `readPosition` without consuming the
// character.
//
// Returns:
//   - rune: The next character in the input stream.
//     If the lexer has reached the end of the input, it returns 0 (null)
func (lexer *Lexer) peek() rune {
	if lexer.readPosition >= lexer.totalChars {
		return rune(0)
	}
	return lexer.characters[lexer.readPosition]
}

// Returns the character after the `Lexer`'s `readPosition` without consuming
// any characters.
//
// Returns:
//   - rune: The character two positions ahead in the input stream.
//     If the lexer has reached the end of the input, it returns 0 (null)
func (lexer *Lexer) peekNext() rune {
	nextReadPos := lexer.readPosition + 1
	if nextReadPos >= lexer.totalChars {
		return rune(0)
	}
	return lexer.characters[nextReadPos]
}

// Determines if the next character in the source code
// matches the `expected` character. If it does the character
// is consumed.
func (lexer *Lexer) isMatch(expected rune) bool {
	if lexer.peek() != expected {
		return false
	}
	lexer.readChar()
	return true
}

// isWhiteSpace determines whether a given rune represents whitespace.
// In Cot, whitespace is considered to be the following characters:
//   - carriage return ('\r')
//   - tab ('\t')
//   - newline ('\n')
//   - ASCII space (' ')
func isWhiteSpace(char rune) bool {
	return char == rune(' ') || char == rune('\r') || char == rune('\t') || char == rune('\n')
}

// Skips all whitespace in the input while advancing the `Lexer`'s position
func (lexer *Lexer) skipWhiteSpace() {
	for isWhiteSpace(lexer.currentChar) {
		lexer.readChar()
	}
}

// addError records a scanning error and appends a matching ERROR token so the
// parser can resynchronize instead of aborting.
func (lexer *Lexer) addError(line int32, column int, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	lexer.errors = append(lexer.errors, fmt.Errorf("%s, line: %v, column: %v", message, line, column))
	lexer.tokens = append(lexer.tokens, token.CreateLiteralToken(token.ERROR, message, "", line, column))
}

// emit appends a positionless operator or delimiter token using the current
// scan position.
func (lexer *Lexer) emit(tokenType token.TokenType, line int32, column int) {
	lexer.tokens = append(lexer.tokens, token.CreateToken(tokenType, line, column))
}

// handleLineComment consumes characters until the end of the line.
func (lexer *Lexer) handleLineComment() {
	for lexer.currentChar != rune('\n') && !lexer.isFinished() {
		lexer.readChar()
	}
}

// handleBlockComment consumes a `/* ... */` comment. Nesting is disallowed;
// an unterminated block comment produces an ERROR token.
func (lexer *Lexer) handleBlockComment() {
	line := lexer.lineCount
	column := lexer.column
	// consume the '*' that follows the already-consumed '/'
	lexer.readChar()
	for {
		if lexer.isFinished() {
			lexer.addError(line, column, "unterminated block comment")
			return
		}
		if lexer.currentChar == rune('*') && lexer.peek() == rune('/') {
			lexer.readChar()
			lexer.readChar()
			return
		}
		lexer.readChar()
	}
}

// handleNumber scans an integer (decimal, 0x hex, 0b binary) or floating
// point literal (decimal digits with '.' and an optional exponent) and
// creates the matching INT or FLOAT token.
//
// Validation rules:
//   - "0x" or "0b" with no digits after the prefix is an error.
//   - A number ending with a decimal point (e.g., "1.") without further
//     digits is left as the integer followed by a range/field token, so
//     `0..10` and `tuple.0` keep working.
//   - A malformed exponent (e.g., "1e+") is an error.
func (lexer *Lexer) handleNumber() {
	initPos := lexer.position
	line := lexer.lineCount
	column := lexer.column

	// hex and binary integer prefixes
	if lexer.currentChar == '0' && (lexer.peek() == 'x' || lexer.peek() == 'b') {
		base := lexer.peek()
		lexer.readChar()
		digits := 0
		for {
			next := lexer.peek()
			if base == 'x' && isHexDigit(next) || base == 'b' && (next == '0' || next == '1') {
				lexer.readChar()
				digits++
				continue
			}
			break
		}
		lexeme := string(lexer.characters[initPos : lexer.position+1])
		lexer.readChar()
		if digits == 0 {
			lexer.addError(line, column, "invalid number: '%s'", lexeme)
			return
		}
		result, _ := strconv.ParseInt(lexeme, 0, 64)
		lexer.tokens = append(lexer.tokens, token.CreateLiteralToken(token.INT, result, lexeme, line, column))
		return
	}

	isFloat := false
	for isNumber(lexer.peek()) {
		lexer.readChar()
	}

	// a '.' is part of the number only when followed by a digit; `1..5`
	// must lex as INT RANGE INT
	if lexer.peek() == '.' && isNumber(lexer.peekNext()) {
		isFloat = true
		lexer.readChar()
		for isNumber(lexer.peek()) {
			lexer.readChar()
		}
	}

	if lexer.peek() == 'e' || lexer.peek() == 'E' {
		after := lexer.peekNext()
		if isNumber(after) || after == '+' || after == '-' {
			isFloat = true
			lexer.readChar()
			if lexer.peek() == '+' || lexer.peek() == '-' {
				lexer.readChar()
			}
			if !isNumber(lexer.peek()) {
				lexeme := string(lexer.characters[initPos : lexer.position+1])
				lexer.readChar()
				lexer.addError(line, column, "invalid number: '%s'", lexeme)
				return
			}
			for isNumber(lexer.peek()) {
				lexer.readChar()
			}
		}
	}

	lexeme := string(lexer.characters[initPos : lexer.position+1])
	lexer.readChar()

	if isFloat {
		result, err := strconv.ParseFloat(lexeme, 64)
		if err != nil {
			lexer.addError(line, column, "invalid number: '%s'", lexeme)
			return
		}
		lexer.tokens = append(lexer.tokens, token.CreateLiteralToken(token.FLOAT, result, lexeme, line, column))
		return
	}
	result, err := strconv.ParseInt(lexeme, 10, 64)
	if err != nil {
		lexer.addError(line, column, "invalid number: '%s'", lexeme)
		return
	}
	lexer.tokens = append(lexer.tokens, token.CreateLiteralToken(token.INT, result, lexeme, line, column))
}

// handleIdentifier processes a user identifier or a
// language keyword in the source code.
func (lexer *Lexer) handleIdentifier() {
	initPos := lexer.position
	line := lexer.lineCount
	column := lexer.column

	for isLetter(lexer.peek()) || isNumber(lexer.peek()) {
		lexer.readChar()
	}

	identifier := string(lexer.characters[initPos : lexer.position+1])
	lexer.readChar()

	tokenType := token.TokenType(token.IDENTIFIER)
	if keywordType, exists := token.KeyWords[identifier]; exists {
		tokenType = keywordType
	}
	lexer.tokens = append(lexer.tokens, token.CreateLiteralToken(tokenType, identifier, identifier, line, column))
}

// resolveEscape maps an escape character to the rune it denotes. \xNN escapes
// are handled separately in handleStringLiteral.
func resolveEscape(char rune) (rune, bool) {
	switch char {
	case 'n':
		return '\n', true
	case 'r':
		return '\r', true
	case 't':
		return '\t', true
	case '\\':
		return '\\', true
	case '"':
		return '"', true
	case '0':
		return rune(0), true
	}
	return 0, false
}

// handleStringLiteral processes string literals in the input, including
// escape sequences and `${expr}` interpolation.
//
// A plain string produces a single STRING token. A string containing
// interpolation produces, in order: a STRING_CONTENT token for the leading
// segment (possibly empty), INTERP_START, the tokens of the embedded
// expression, INTERP_END, and so on, followed by a final STRING_CONTENT
// for the trailing segment. The parser reassembles these into an
// interpolated-string expression.
func (lexer *Lexer) handleStringLiteral() {
	line := lexer.lineCount
	column := lexer.column
	interpolated := false
	var segment strings.Builder

	// consume the opening quote
	lexer.readChar()

	flushSegment := func(tokType token.TokenType) {
		value := segment.String()
		segment.Reset()
		lexer.tokens = append(lexer.tokens, token.CreateLiteralToken(tokType, value, value, line, column))
	}

	for {
		if lexer.isFinished() || lexer.currentChar == rune('\n') {
			lexer.addError(line, column, "unterminated string literal")
			return
		}

		if lexer.currentChar == '"' {
			lexer.readChar()
			break
		}

		if lexer.currentChar == '\\' {
			escape := lexer.peek()
			if escape == 'x' {
				high := lexer.peekNext()
				lexer.readChar()
				lexer.readChar()
				low := lexer.peek()
				if !isHexDigit(high) || !isHexDigit(low) {
					lexer.addError(line, column, "unknown escape sequence: '\\x%c%c'", high, low)
					return
				}
				value, _ := strconv.ParseInt(string([]rune{high, low}), 16, 16)
				segment.WriteRune(rune(value))
				lexer.readChar()
				lexer.readChar()
				continue
			}
			resolved, known := resolveEscape(escape)
			if !known {
				lexer.addError(line, column, "unknown escape sequence: '\\%c'", escape)
				return
			}
			segment.WriteRune(resolved)
			lexer.readChar()
			lexer.readChar()
			continue
		}

		if lexer.currentChar == '$' && lexer.peek() == '{' {
			interpolated = true
			flushSegment(token.STRING_CONTENT)
			lexer.emit(token.INTERP_START, lexer.lineCount, lexer.column)
			lexer.readChar()
			lexer.readChar()
			lexer.scanInterpolation(line, column)
			continue
		}

		segment.WriteRune(lexer.currentChar)
		lexer.readChar()
	}

	if interpolated {
		flushSegment(token.STRING_CONTENT)
		return
	}
	flushSegment(token.STRING)
}

// scanInterpolation lexes the tokens of one `${expr}` occurrence, up to and
// including the closing brace, which becomes an INTERP_END token. Braces
// inside the expression (struct literals, blocks) are depth-tracked so the
// right closing brace ends the interpolation.
func (lexer *Lexer) scanInterpolation(line int32, column int) {
	depth := 0
	for {
		lexer.skipWhiteSpace()
		if lexer.isFinished() {
			lexer.addError(line, column, "unterminated string interpolation")
			return
		}
		if lexer.currentChar == '{' {
			depth++
		}
		if lexer.currentChar == '}' {
			if depth == 0 {
				lexer.emit(token.INTERP_END, lexer.lineCount, lexer.column)
				lexer.readChar()
				return
			}
			depth--
		}
		lexer.createToken()
	}
}

// Processes the current character and creates a token if applicable.
//
// This method is responsible for identifying and creating tokens based on the
// current character in the input stream. Multi-character operators are
// matched greedily (max munch), so `..=` wins over `..` which wins over `.`.
func (lexer *Lexer) createToken() {

	lexer.skipWhiteSpace()
	if lexer.isFinished() {
		return
	}

	line := lexer.lineCount
	column := lexer.column

	switch lexer.currentChar {
	case rune('('):
		lexer.emit(token.LPA, line, column)
	case rune(')'):
		lexer.emit(token.RPA, line, column)
	case rune('{'):
		lexer.emit(token.LCUR, line, column)
	case rune('}'):
		lexer.emit(token.RCUR, line, column)
	case rune('['):
		lexer.emit(token.LSQR, line, column)
	case rune(']'):
		lexer.emit(token.RSQR, line, column)
	case rune(';'):
		lexer.emit(token.SEMICOLON, line, column)
	case rune(','):
		lexer.emit(token.COMMA, line, column)
	case rune('~'):
		lexer.emit(token.TILDE, line, column)
	case rune('^'):
		lexer.emit(token.CARET, line, column)
	case rune('%'):
		lexer.emit(token.MOD, line, column)
	case rune(':'):
		if lexer.isMatch(rune(':')) {
			lexer.emit(token.SCOPE, line, column)
		} else {
			lexer.emit(token.COLON, line, column)
		}
	case rune('.'):
		if lexer.isMatch(rune('.')) {
			if lexer.isMatch(rune('=')) {
				lexer.emit(token.RANGE_INCL, line, column)
			} else {
				lexer.emit(token.RANGE, line, column)
			}
		} else {
			lexer.emit(token.DOT, line, column)
		}
	case rune('?'):
		if lexer.isMatch(rune('.')) {
			lexer.emit(token.OPT_FIELD, line, column)
		} else if lexer.isMatch(rune(':')) {
			lexer.emit(token.OPT_ELSE, line, column)
		} else {
			lexer.emit(token.QUESTION, line, column)
		}
	case rune('*'):
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.MULT_ASSIGN, line, column)
		} else {
			lexer.emit(token.MULT, line, column)
		}
	case rune('+'):
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.ADD_ASSIGN, line, column)
		} else {
			lexer.emit(token.ADD, line, column)
		}
	case rune('-'):
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.SUB_ASSIGN, line, column)
		} else if lexer.isMatch(rune('>')) {
			lexer.emit(token.ARROW, line, column)
		} else {
			lexer.emit(token.SUB, line, column)
		}
	case rune('/'):
		if lexer.peek() == rune('/') {
			lexer.handleLineComment()
			return
		}
		if lexer.peek() == rune('*') {
			lexer.readChar()
			lexer.handleBlockComment()
			return
		}
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.DIV_ASSIGN, line, column)
		} else {
			lexer.emit(token.DIV, line, column)
		}
	case rune('='):
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.EQUAL_EQUAL, line, column)
		} else if lexer.isMatch(rune('>')) {
			lexer.emit(token.FAT_ARROW, line, column)
		} else {
			lexer.emit(token.ASSIGN, line, column)
		}
	case rune('!'):
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.NOT_EQUAL, line, column)
		} else {
			lexer.emit(token.BANG, line, column)
		}
	case rune('<'):
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.LESS_EQUAL, line, column)
		} else if lexer.isMatch(rune('<')) {
			lexer.emit(token.SHL, line, column)
		} else {
			lexer.emit(token.LESS, line, column)
		}
	case rune('>'):
		if lexer.isMatch(rune('=')) {
			lexer.emit(token.LARGER_EQUAL, line, column)
		} else if lexer.isMatch(rune('>')) {
			lexer.emit(token.SHR, line, column)
		} else {
			lexer.emit(token.LARGER, line, column)
		}
	case rune('&'):
		if lexer.isMatch(rune('&')) {
			lexer.emit(token.AND_AND, line, column)
		} else {
			lexer.emit(token.AMP, line, column)
		}
	case rune('|'):
		if lexer.isMatch(rune('|')) {
			lexer.emit(token.OR_OR, line, column)
		} else {
			lexer.emit(token.PIPE, line, column)
		}
	case rune('"'):
		lexer.handleStringLiteral()
		return
	default:
		if isLetter(lexer.currentChar) {
			lexer.handleIdentifier()
			return
		}
		if isNumber(lexer.currentChar) {
			lexer.handleNumber()
			return
		}
		lexer.addError(line, column, "unexpected character: '%c'", lexer.currentChar)
	}
	lexer.readChar()
}

// Scan performs lexical analysis on the input and returns a slice of tokens.
//
// This method is the main entry point for the lexical analysis process. It
// iterates through the input, tokenizing it and collecting all tokens until
// the end of the input is reached. The returned stream always ends with an
// EOF token; lexical errors appear inline as ERROR tokens and are also
// reported through Errors().
func (lexer *Lexer) Scan() []token.Token {
	for !lexer.isFinished() {
		lexer.createToken()
	}
	lexer.tokens = append(lexer.tokens, token.CreateToken(token.EOF, lexer.lineCount, lexer.column))
	return lexer.tokens
}
