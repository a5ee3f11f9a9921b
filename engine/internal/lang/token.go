package lang

import (
	"fmt"
	"strings"
	"unicode"
)

// Type identifies a token class.
type Type int

const (
	EOF Type = iota
	Newline
	Ident
	Keyword
	Int
	Float
	Str
	Op
	LParen
	RParen
	Comma
)

func (t Type) String() string {
	switch t {
	case EOF:
		return "end of input"
	case Newline:
		return "newline"
	case Ident:
		return "identifier"
	case Keyword:
		return "keyword"
	case Int:
		return "integer"
	case Float:
		return "float"
	case Str:
		return "string"
	case Op:
		return "operator"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Comma:
		return "','"
	}
	return "unknown"
}

// Token is one lexed token.
type Token struct {
	Value string
	Type  Type
	Line  int
}

var keywords = map[string]bool{
	"function": true, "end": true, "if": true, "elseif": true,
	"else": true, "while": true, "begin": true, "return": true,
	"struct": true, "mutable": true, "true": true, "false": true,
	"nothing": true,
}

var opChars = "+-*/^=<>!%&|:."

// Tokenize splits source text into tokens. Newlines and semicolons both
// terminate statements and lex as Newline.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case r == '\n' || r == ';':
			tokens = append(tokens, Token{Type: Newline, Line: line})
			if r == '\n' {
				line++
			}
			continue
		case r == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			i--
			continue
		case unicode.IsSpace(r):
			continue
		case r == '(':
			tokens = append(tokens, Token{Type: LParen, Value: "(", Line: line})
			continue
		case r == ')':
			tokens = append(tokens, Token{Type: RParen, Value: ")", Line: line})
			continue
		case r == ',':
			tokens = append(tokens, Token{Type: Comma, Value: ",", Line: line})
			continue
		case r == '"':
			j := i + 1
			var b strings.Builder
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' && j+1 < len(runes) {
					j++
					switch runes[j] {
					case 'n':
						b.WriteRune('\n')
					case 't':
						b.WriteRune('\t')
					case '"':
						b.WriteRune('"')
					case '\\':
						b.WriteRune('\\')
					default:
						return nil, fmt.Errorf("line %d: unknown escape \\%c", line, runes[j])
					}
				} else {
					b.WriteRune(runes[j])
				}
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("line %d: unterminated string", line)
			}
			tokens = append(tokens, Token{Type: Str, Value: b.String(), Line: line})
			i = j
			continue
		case unicode.IsDigit(r):
			j := i
			isFloat := false
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.' || runes[j] == '_') {
				if runes[j] == '.' {
					if j+1 < len(runes) && !unicode.IsDigit(runes[j+1]) {
						break
					}
					if isFloat {
						break
					}
					isFloat = true
				}
				j++
			}
			// exponent part
			if j < len(runes) && (runes[j] == 'e' || runes[j] == 'E') {
				k := j + 1
				if k < len(runes) && (runes[k] == '+' || runes[k] == '-') {
					k++
				}
				if k < len(runes) && unicode.IsDigit(runes[k]) {
					isFloat = true
					j = k
					for j < len(runes) && unicode.IsDigit(runes[j]) {
						j++
					}
				}
			}
			val := strings.ReplaceAll(string(runes[i:j]), "_", "")
			typ := Int
			if isFloat {
				typ = Float
			}
			tokens = append(tokens, Token{Type: typ, Value: val, Line: line})
			i = j - 1
			continue
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '!') {
				j++
			}
			word := string(runes[i:j])
			typ := Ident
			if keywords[word] {
				typ = Keyword
			}
			tokens = append(tokens, Token{Type: typ, Value: word, Line: line})
			i = j - 1
			continue
		case strings.ContainsRune(opChars, r):
			j := i
			for j < len(runes) && strings.ContainsRune(opChars, runes[j]) {
				j++
			}
			tokens = append(tokens, Token{Type: Op, Value: string(runes[i:j]), Line: line})
			i = j - 1
			continue
		default:
			return nil, fmt.Errorf("line %d: unexpected character %q", line, r)
		}
	}

	tokens = append(tokens, Token{Type: EOF, Line: line})
	return tokens, nil
}
