package effect

// builtinExceptionParents is the builtin exception hierarchy by class name.
var builtinExceptionParents = map[string]string{
	"BaseException":             "",
	"SystemExit":                "BaseException",
	"KeyboardInterrupt":         "BaseException",
	"GeneratorExit":             "BaseException",
	"Exception":                 "BaseException",
	"StopIteration":             "Exception",
	"StopAsyncIteration":        "Exception",
	"ArithmeticError":           "Exception",
	"FloatingPointError":        "ArithmeticError",
	"OverflowError":             "ArithmeticError",
	"ZeroDivisionError":         "ArithmeticError",
	"AssertionError":            "Exception",
	"AttributeError":            "Exception",
	"BufferError":               "Exception",
	"EOFError":                  "Exception",
	"ImportError":               "Exception",
	"ModuleNotFoundError":       "ImportError",
	"LookupError":               "Exception",
	"IndexError":                "LookupError",
	"KeyError":                  "LookupError",
	"MemoryError":               "Exception",
	"NameError":                 "Exception",
	"UnboundLocalError":         "NameError",
	"OSError":                   "Exception",
	"IOError":                   "OSError",
	"EnvironmentError":          "OSError",
	"BlockingIOError":           "OSError",
	"ChildProcessError":         "OSError",
	"ConnectionError":           "OSError",
	"BrokenPipeError":           "ConnectionError",
	"ConnectionAbortedError":    "ConnectionError",
	"ConnectionRefusedError":    "ConnectionError",
	"ConnectionResetError":      "ConnectionError",
	"FileExistsError":           "OSError",
	"FileNotFoundError":         "OSError",
	"InterruptedError":          "OSError",
	"IsADirectoryError":         "OSError",
	"NotADirectoryError":        "OSError",
	"PermissionError":           "OSError",
	"ProcessLookupError":        "OSError",
	"TimeoutError":              "OSError",
	"ReferenceError":            "Exception",
	"RuntimeError":              "Exception",
	"NotImplementedError":       "RuntimeError",
	"RecursionError":            "RuntimeError",
	"SyntaxError":               "Exception",
	"IndentationError":          "SyntaxError",
	"TabError":                  "IndentationError",
	"SystemError":               "Exception",
	"TypeError":                 "Exception",
	"ValueError":                "Exception",
	"UnicodeError":              "ValueError",
	"UnicodeDecodeError":        "UnicodeError",
	"UnicodeEncodeError":        "UnicodeError",
	"UnicodeTranslateError":     "UnicodeError",
	"Warning":                   "Exception",
	"DeprecationWarning":        "Warning",
	"UserWarning":               "Warning",
	"RuntimeWarning":            "Warning",
	"JSONDecodeError":           "ValueError",
	"CalledProcessError":        "SubprocessError",
	"SubprocessError":           "Exception",
	"TimeoutExpired":            "SubprocessError",
	"SameFileError":             "OSError",
	"ContractError":             "AssertionError",
	"PreContractError":          "ContractError",
	"PostContractError":         "ContractError",
	"InvContractError":          "ContractError",
	"RaisesContractError":       "ContractError",
	"MarkerError":               "ContractError",
	"OfflineContractError":      "MarkerError",
	"SilentContractError":       "MarkerError",
}

// Hierarchy answers subclass questions about exception kinds, combining
// the builtin hierarchy with classes declared in the project.
type Hierarchy struct {
	// project maps a class name to the names of its bases.
	project map[string][]string
}

// NewHierarchy returns a hierarchy extended with project classes.
func NewHierarchy(project map[string][]string) *Hierarchy {
	if project == nil {
		project = map[string][]string{}
	}
	return &Hierarchy{project: project}
}

// IsSubclass reports whether kind is base or derives from it.
func (h *Hierarchy) IsSubclass(kind, base string) bool {
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(k string) bool {
		if k == base {
			return true
		}
		if k == "" || seen[k] {
			return false
		}
		seen[k] = true
		if h != nil {
			if bases, ok := h.project[k]; ok {
				for _, b := range bases {
					if walk(b) {
						return true
					}
				}
				return false
			}
		}
		return walk(builtinExceptionParents[k])
	}
	return walk(kind)
}

// Catches reports whether an except clause naming handler types catches
// kind. A nil list is a bare except. Broad handlers also catch exceptions
// the analysis cannot name.
func (h *Hierarchy) Catches(types []string, kind string) bool {
	if types == nil {
		return true
	}
	for _, t := range types {
		if kind == UnknownException {
			if t == "Exception" || t == "BaseException" {
				return true
			}
			continue
		}
		if h.IsSubclass(kind, t) {
			return true
		}
	}
	return false
}

// IsException reports whether name is a known exception class.
func (h *Hierarchy) IsException(name string) bool {
	return h.IsSubclass(name, "BaseException")
}
