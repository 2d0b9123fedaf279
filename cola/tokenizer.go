package cola

import (
	"bytes"
	"strings"
)

// Tokenize splits a telegram body on SP. The result is never empty and
// keeps empty tokens, including the trailing one produced by a separator
// at the very end of the body.
func Tokenize(body []byte) [][]byte {
	return bytes.Split(body, []byte{SP})
}

// Identity is the (qualifier, name) pair that selects a parser.
type Identity struct {
	Qualifier string
	Name      string
}

func (id Identity) String() string {
	return id.Qualifier + " " + id.Name
}

// Identify reads the identity from the first two tokens. Missing tokens
// yield empty fields.
func Identify(tokens [][]byte) Identity {
	var id Identity
	if len(tokens) > 0 {
		id.Qualifier = string(tokens[0])
	}
	if len(tokens) > 1 {
		id.Name = string(tokens[1])
	}
	return id
}

// Is reports whether the qualifier token contains q.
func (id Identity) Is(q Qualifier) bool {
	return strings.Contains(id.Qualifier, string(q))
}

// Names reports whether the name token contains name.
func (id Identity) Names(name string) bool {
	return strings.Contains(id.Name, name)
}
