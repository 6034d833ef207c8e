package effect

import (
	"strings"

	"github.com/gnolang/dealint/internal/pyast"
)

// UnknownException stands for exceptions raised by code the analysis
// cannot see into.
const UnknownException = "unknown-exception"

// External state categories.
const (
	MarkGlobal  = "global"
	MarkImport  = "import"
	MarkIO      = "io"
	MarkRead    = "read"
	MarkWrite   = "write"
	MarkStdout  = "stdout"
	MarkStderr  = "stderr"
	MarkStdin   = "stdin"
	MarkNetwork = "network"
	MarkSyscall = "syscall"
	MarkRandom  = "random"
	MarkTime    = "time"
	// MarkMutate is a write through a binding the function does not own.
	// It makes a function impure but is not a declarable marker.
	MarkMutate = "mutate"
)

// MarkerCodes maps declarable markers to their diagnostic codes.
var MarkerCodes = map[string]int{
	MarkGlobal:  41,
	MarkImport:  42,
	MarkIO:      43,
	MarkRead:    44,
	MarkWrite:   45,
	MarkStdout:  46,
	MarkStderr:  47,
	MarkNetwork: 48,
	MarkStdin:   49,
	MarkSyscall: 50,
	MarkRandom:  55,
	MarkTime:    56,
}

// IsIO reports whether the marker is a kind of input/output.
func IsIO(marker string) bool {
	switch marker {
	case MarkIO, MarkRead, MarkWrite, MarkStdout, MarkStderr, MarkStdin, MarkNetwork, MarkSyscall:
		return true
	}
	return false
}

// Covers reports whether an allowed marker set admits marker m.
// "io" admits every input/output category.
func Covers(allowed []string, m string) bool {
	for _, a := range allowed {
		if a == m || (a == MarkIO && IsIO(m)) {
			return true
		}
	}
	return false
}

// NonDeterministic reports whether a marker makes results vary between calls.
func NonDeterministic(marker string) bool {
	return marker == MarkRandom || marker == MarkTime || marker == MarkStdin || marker == MarkNetwork || marker == MarkRead
}

var randomFuncs = map[string]bool{
	"randint": true, "randbytes": true, "randrange": true, "getrandbits": true, "shuffle": true,
}

var syscalls = map[string]bool{
	"os.abort": true, "os.execv": true, "os.fork": true, "os.forkpty": true, "os.kill": true,
	"os.killpg": true, "os.plock": true, "os.posix_spawn": true, "os.posix_spawnp": true,
	"os.putenv": true, "os.startfile": true, "os.system": true, "os.wait": true, "os.wait3": true,
	"os.wait4": true, "os.waitid": true, "os.waitpid": true,
	"subprocess.call": true, "subprocess.check_call": true, "subprocess.check_output": true,
	"subprocess.getoutput": true, "subprocess.getstatusoutput": true, "subprocess.run": true,
	"subprocess.Popen": true,
}

var syscallPrefixes = []string{"os.exec", "os.spawn", "os.popen"}

var times = map[string]bool{
	"os.times": true, "datetime.now": true, "date.today": true, "datetime.datetime.now": true,
	"datetime.date.today": true, "datetime.datetime.utcnow": true,
	"time.clock_gettime": true, "time.clock_gettime_ns": true, "time.get_clock_info": true,
	"time.monotonic": true, "time.monotonic_ns": true, "time.perf_counter": true,
	"time.perf_counter_ns": true, "time.process_time": true, "time.process_time_ns": true,
	"time.time": true, "time.time_ns": true, "time.thread_time": true, "time.thread_time_ns": true,
	"time.sleep": true,
}

var network = map[string]bool{
	"socket.socket": true, "socket.create_connection": true, "socket.getaddrinfo": true,
	"urllib.request.urlopen": true, "http.client.HTTPConnection": true,
	"http.client.HTTPSConnection": true,
	"asyncio.open_connection": true, "asyncio.start_server": true,
	"asyncio.open_unix_connection": true, "asyncio.start_unix_server": true,
	"requests.get": true, "requests.post": true, "requests.put": true,
	"requests.delete": true, "requests.request": true,
}

var networkMethods = map[string]bool{
	"connect": true, "sendall": true, "recv": true, "listen": true, "bind": true, "accept": true,
}

// exitFuncs always raise SystemExit.
var exitFuncs = map[string]bool{
	"exit": true, "quit": true, "sys.exit": true, "os._exit": true,
}

// markersOf returns the external-state categories a call to the given
// canonical name performs, judged by the catalog alone.
func markersOf(name string, call *pyast.Call) []string {
	switch {
	case name == "print":
		return []string{printMarker(call)}
	case strings.HasPrefix(name, "sys.stdout."):
		return []string{MarkStdout}
	case strings.HasPrefix(name, "sys.stderr."):
		return []string{MarkStderr}
	case strings.HasPrefix(name, "sys.stdin."), name == "input":
		return []string{MarkStdin}
	case name == "__import__", name == "importlib.import_module":
		return []string{MarkImport}
	case name == "open", name == "io.open", name == "os.open":
		if openForWrite(call) {
			return []string{MarkWrite}
		}
		return []string{MarkRead}
	case syscalls[name]:
		return []string{MarkSyscall}
	case times[name]:
		return []string{MarkTime}
	case network[name]:
		return []string{MarkNetwork}
	}
	for _, p := range syscallPrefixes {
		if strings.HasPrefix(name, p) {
			return []string{MarkSyscall}
		}
	}
	if strings.HasPrefix(name, "random.") || strings.HasPrefix(name, "secrets.") {
		return []string{MarkRandom}
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 && randomFuncs[name[i+1:]] {
		return []string{MarkRandom}
	}
	switch name {
	case "os.remove", "os.unlink", "os.rename", "os.mkdir", "os.makedirs", "os.rmdir",
		"shutil.rmtree", "shutil.copy", "shutil.move", "os.chmod":
		return []string{MarkWrite}
	case "os.listdir", "os.stat", "os.path.exists", "os.path.isfile", "os.path.isdir",
		"os.getcwd", "os.getenv", "os.environ.get", "glob.glob":
		return []string{MarkRead}
	}
	return nil
}

func printMarker(call *pyast.Call) string {
	if call == nil {
		return MarkStdout
	}
	for _, kw := range call.Keywords {
		if kw.Name != "file" {
			continue
		}
		switch pyast.DottedName(kw.Value) {
		case "stdout", "sys.stdout":
			return MarkStdout
		case "stderr", "sys.stderr":
			return MarkStderr
		}
		return MarkWrite
	}
	return MarkStdout
}

func openForWrite(call *pyast.Call) bool {
	if call == nil {
		return false
	}
	isWrite := func(e pyast.Expr) bool {
		c, ok := e.(*pyast.Const)
		return ok && c.Kind == pyast.ConstStr && strings.ContainsAny(c.Str, "wax+")
	}
	if len(call.Args) > 1 && isWrite(call.Args[1]) {
		return true
	}
	for _, kw := range call.Keywords {
		if kw.Name == "mode" && isWrite(kw.Value) {
			return true
		}
	}
	return false
}

// pureBuiltins can be called without side effects or exceptions worth
// tracking.
var pureBuiltins = map[string]bool{
	"abs": true, "all": true, "any": true, "ascii": true, "bin": true, "bool": true,
	"bytearray": true, "bytes": true, "callable": true, "chr": true, "complex": true,
	"dict": true, "divmod": true, "enumerate": true, "filter": true, "float": true,
	"format": true, "frozenset": true, "getattr": true, "hasattr": true, "hash": true,
	"hex": true, "id": true, "int": true, "isinstance": true, "issubclass": true,
	"iter": true, "len": true, "list": true, "map": true, "max": true, "min": true,
	"next": true, "object": true, "oct": true, "ord": true, "pow": true, "range": true,
	"repr": true, "reversed": true, "round": true, "set": true, "slice": true,
	"sorted": true, "str": true, "sum": true, "tuple": true, "type": true, "zip": true,
	"super": true, "property": true, "staticmethod": true, "classmethod": true,
	"vars": true, "dir": true,
	"math.sqrt": true, "math.floor": true, "math.ceil": true, "math.isfinite": true,
	"math.isnan": true, "math.isinf": true, "math.log": true, "math.exp": true,
	"math.fabs": true, "math.gcd": true, "math.pow": true, "math.sin": true, "math.cos": true,
	"re.compile": true, "re.match": true, "re.search": true, "re.fullmatch": true,
	"re.sub": true, "re.split": true, "re.findall": true, "re.escape": true,
	"json.dumps": true, "json.loads": true, "copy.copy": true, "copy.deepcopy": true,
	"functools.reduce": true, "functools.partial": true, "itertools.chain": true,
	"itertools.product": true, "itertools.islice": true, "operator.itemgetter": true,
	"collections.Counter": true, "collections.defaultdict": true,
	"collections.OrderedDict": true, "collections.deque": true, "dataclasses.field": true,
	"typing.cast": true,
}

// containerBuiltins produce fresh containers the caller owns.
var containerBuiltins = map[string]bool{
	"list": true, "dict": true, "set": true, "bytearray": true, "sorted": true,
	"collections.Counter": true, "collections.defaultdict": true,
	"collections.OrderedDict": true, "collections.deque": true, "copy.copy": true,
	"copy.deepcopy": true,
}

// PythonBuiltins are the names bound in every module without import.
var PythonBuiltins = func() map[string]bool {
	out := map[string]bool{
		"print": true, "input": true, "open": true, "exit": true, "quit": true,
		"__import__": true, "globals": true, "locals": true, "eval": true, "exec": true,
		"compile": true, "setattr": true, "delattr": true, "breakpoint": true, "help": true,
		"memoryview": true,
	}
	for name := range pureBuiltins {
		if !strings.Contains(name, ".") {
			out[name] = true
		}
	}
	for name := range builtinExceptionParents {
		out[name] = true
	}
	return out
}()

// dynamicBuiltins defeat static analysis.
var dynamicBuiltins = map[string]bool{
	"eval": true, "exec": true, "compile": true, "globals": true, "locals": true,
	"setattr": true, "delattr": true, "breakpoint": true,
}

// mutatingMethods change the receiver in place.
var mutatingMethods = map[string]bool{
	"append": true, "extend": true, "insert": true, "remove": true, "pop": true,
	"clear": true, "sort": true, "reverse": true, "update": true, "add": true,
	"discard": true, "setdefault": true, "popitem": true, "appendleft": true,
	"popleft": true, "extendleft": true, "rotate": true, "difference_update": true,
	"intersection_update": true, "symmetric_difference_update": true,
}

// readOnlyMethods are side-effect free on builtin values.
var readOnlyMethods = map[string]bool{
	"get": true, "keys": true, "values": true, "items": true, "copy": true, "count": true,
	"index": true, "startswith": true, "endswith": true, "strip": true, "lstrip": true,
	"rstrip": true, "split": true, "rsplit": true, "join": true, "lower": true, "upper": true,
	"replace": true, "format": true, "find": true, "rfind": true, "isdigit": true,
	"isalpha": true, "isalnum": true, "isspace": true, "encode": true, "decode": true,
	"title": true, "capitalize": true, "zfill": true, "partition": true, "splitlines": true,
	"union": true, "intersection": true, "difference": true, "issubset": true,
	"issuperset": true, "casefold": true, "center": true, "ljust": true, "rjust": true,
}
