package graph

import "strings"

// Language built-ins never resolve to chunks, so calls to them are dropped
// before resolution and excluded from the accuracy denominator.

var pythonBuiltins = map[string]struct{}{
	"abs": {}, "all": {}, "any": {}, "bool": {}, "bytes": {}, "callable": {},
	"classmethod": {}, "delattr": {}, "dict": {}, "dir": {}, "enumerate": {},
	"filter": {}, "float": {}, "format": {}, "frozenset": {}, "getattr": {},
	"globals": {}, "hasattr": {}, "hash": {}, "id": {}, "input": {}, "int": {},
	"isinstance": {}, "issubclass": {}, "iter": {}, "len": {}, "list": {},
	"locals": {}, "map": {}, "max": {}, "min": {}, "next": {}, "object": {},
	"open": {}, "ord": {}, "print": {}, "property": {}, "range": {}, "repr": {},
	"reversed": {}, "round": {}, "set": {}, "setattr": {}, "sorted": {},
	"staticmethod": {}, "str": {}, "sum": {}, "super": {}, "tuple": {},
	"type": {}, "vars": {}, "zip": {},

	"BaseException": {}, "Exception": {}, "ArithmeticError": {},
	"AssertionError": {}, "AttributeError": {}, "FileNotFoundError": {},
	"ImportError": {}, "IndexError": {}, "KeyError": {}, "KeyboardInterrupt": {},
	"LookupError": {}, "NotImplementedError": {}, "OSError": {},
	"OverflowError": {}, "RuntimeError": {}, "StopIteration": {},
	"TypeError": {}, "ValueError": {}, "ZeroDivisionError": {},
}

var typescriptBuiltins = map[string]struct{}{
	"parseInt": {}, "parseFloat": {}, "isNaN": {}, "isFinite": {},
	"encodeURIComponent": {}, "decodeURIComponent": {}, "encodeURI": {},
	"decodeURI": {}, "setTimeout": {}, "setInterval": {}, "clearTimeout": {},
	"clearInterval": {}, "queueMicrotask": {}, "structuredClone": {},
	"fetch": {}, "require": {}, "alert": {}, "eval": {},

	"Array": {}, "ArrayBuffer": {}, "BigInt": {}, "Boolean": {}, "DataView": {},
	"Date": {}, "Error": {}, "EvalError": {}, "Function": {}, "Infinity": {},
	"Intl": {}, "JSON": {}, "Map": {}, "Math": {}, "NaN": {}, "Number": {},
	"Object": {}, "Promise": {}, "Proxy": {}, "RangeError": {},
	"ReferenceError": {}, "Reflect": {}, "RegExp": {}, "Set": {}, "String": {},
	"Symbol": {}, "SyntaxError": {}, "TypeError": {}, "URIError": {},
	"URL": {}, "URLSearchParams": {}, "WeakMap": {}, "WeakSet": {},
	"console": {}, "document": {}, "window": {}, "globalThis": {},
	"process": {}, "navigator": {},
}

// IsBuiltin reports whether a call name is a language built-in. Dotted calls
// match when their base segment is a built-in namespace (console.log,
// Math.max, str.join).
func IsBuiltin(language, call string) bool {
	set := builtinsFor(language)
	if set == nil {
		return false
	}
	if _, ok := set[call]; ok {
		return true
	}
	if i := strings.IndexByte(call, '.'); i > 0 {
		_, ok := set[call[:i]]
		return ok
	}
	return false
}

func builtinsFor(language string) map[string]struct{} {
	switch language {
	case "python":
		return pythonBuiltins
	case "typescript", "tsx", "javascript", "jsx":
		return typescriptBuiltins
	default:
		return nil
	}
}
