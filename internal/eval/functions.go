package eval

import (
	"sync"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/series"
)

// Function evaluates one function call against the evaluator's input.
type Function func(e *Evaluator, call *ast.Call) series.Multi

var (
	functionsMu sync.RWMutex
	functions   = map[string]Function{}
)

// RegisterFunction adds a function under its name. Duplicate registration is
// a programming error.
func RegisterFunction(name string, f Function) {
	functionsMu.Lock()
	defer functionsMu.Unlock()
	if _, dup := functions[name]; dup {
		panic("function " + name + " registered twice")
	}
	functions[name] = f
}

// LookupFunction resolves a function by name.
func LookupFunction(name string) (Function, bool) {
	functionsMu.RLock()
	defer functionsMu.RUnlock()
	f, ok := functions[name]
	return f, ok
}

func init() {
	RegisterFunction("abs", evalAbs)
	RegisterFunction("contains", evalContains)
	RegisterFunction("otherwise", evalOtherwise)
	RegisterFunction("float", evalFloat)
	RegisterFunction("encode_base64", evalEncodeBase64)
	RegisterFunction("decode_base64", evalDecodeBase64)
	RegisterFunction("encode_hex", evalEncodeHex)
	RegisterFunction("decode_hex", evalDecodeHex)
}
