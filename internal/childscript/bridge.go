// Package childscript holds the embedded Python 3 source for the child
// bridge (C1): the program that runs inside every worker subprocess,
// speaks newline-delimited JSON on stdin/stdout, and owns the persistent
// evaluation scope for that worker.
//
// This mirrors the teacher's cmd/agent/bootstraps.go, which embeds one
// Go string constant per supported guest runtime. Here there is exactly
// one child language (Python 3), so there is exactly one constant.
package childscript

import (
	"fmt"
	"os"
	"path/filepath"
)

// Source is the full Python 3 program executed inside every worker.
// It is never interpreted by Go; it is written to a file and handed to
// `python3` as a subprocess. Keep it dependency-free (stdlib only):
// check_syntax uses only the ast module, and get_completions returns an
// empty list when the optional jedi package is absent.
const Source = `import ast
import importlib
import io
import json
import sys
import traceback

_DENIED_MODULES = {
    "os", "subprocess", "socket", "ctypes", "shutil", "pickle",
    "marshal", "importlib", "sysconfig", "multiprocessing", "signal",
}
_DENIED_CALLS = {"eval", "exec", "compile", "__import__", "globals", "locals", "vars"}
_DENIED_ATTR_PREFIXES = ("__",)


class _SecurityError(Exception):
    pass


class _SafeEncoder(json.JSONEncoder):
    def default(self, o):
        try:
            return str(o)
        except Exception:
            return repr(o)


def _check_restricted(tree):
    for node in ast.walk(tree):
        if isinstance(node, (ast.Import,)):
            for alias in node.names:
                top = alias.name.split(".")[0]
                if top in _DENIED_MODULES:
                    raise _SecurityError("import of '%s' is not permitted in RESTRICTED mode" % top)
        elif isinstance(node, ast.ImportFrom):
            top = (node.module or "").split(".")[0]
            if top in _DENIED_MODULES:
                raise _SecurityError("import of '%s' is not permitted in RESTRICTED mode" % top)
        elif isinstance(node, ast.Call):
            fn = node.func
            name = None
            if isinstance(fn, ast.Name):
                name = fn.id
            elif isinstance(fn, ast.Attribute):
                name = fn.attr
            if name in _DENIED_CALLS:
                raise _SecurityError("call to '%s' is not permitted in RESTRICTED mode" % name)
        elif isinstance(node, ast.Attribute):
            if node.attr.startswith(_DENIED_ATTR_PREFIXES) and node.attr not in ("__init__", "__str__", "__repr__"):
                raise _SecurityError("access to '%s' is not permitted in RESTRICTED mode" % node.attr)


def _compile_guarded(source, mode, security_mode):
    tree = ast.parse(source, mode=mode)
    if security_mode != "ADMIN":
        _check_restricted(tree)
    return compile(tree, "<bridge>", mode)


class Bridge(object):
    def __init__(self):
        self._globals = {"__name__": "__bridge__", "__builtins__": __builtins__}

    def _effective_scope(self, variables):
        scope = dict(self._globals)
        if variables:
            scope.update(variables)
        return scope

    def _merge_back(self, scope):
        for key, value in scope.items():
            if key == "result":
                continue
            self._globals[key] = value

    def execute(self, code, variables, security_mode):
        scope = self._effective_scope(variables)
        compiled = _compile_guarded(code, "exec", security_mode)
        exec(compiled, scope)
        result = scope.get("result")
        self._merge_back(scope)
        return result

    def evaluate(self, expression, variables, security_mode):
        scope = self._effective_scope(variables)
        compiled = _compile_guarded(expression, "eval", security_mode)
        result = eval(compiled, scope)
        self._merge_back(scope)
        return result

    def call_module(self, module, function, args, kwargs, security_mode):
        if security_mode != "ADMIN" and module.split(".")[0] in _DENIED_MODULES:
            raise _SecurityError("import of '%s' is not permitted in RESTRICTED mode" % module)
        mod = importlib.import_module(module)
        target = mod
        for part in function.split("."):
            target = getattr(target, part)
        return target(*(args or []), **(kwargs or {}))

    def check_syntax(self, code):
        findings = []
        try:
            tree = ast.parse(code)
        except SyntaxError as exc:
            findings.append({
                "line": exc.lineno or 1,
                "column": (exc.offset or 1) - 1,
                "severity": "error",
                "message": str(exc.msg),
            })
            return findings

        imported = {}
        used = set()
        for node in ast.walk(tree):
            if isinstance(node, ast.Import):
                for alias in node.names:
                    name = (alias.asname or alias.name.split(".")[0])
                    imported[name] = node.lineno
            elif isinstance(node, ast.ImportFrom):
                for alias in node.names:
                    name = alias.asname or alias.name
                    imported[name] = node.lineno
            elif isinstance(node, ast.Name):
                used.add(node.id)
        for name, lineno in imported.items():
            if name not in used:
                findings.append({
                    "line": lineno,
                    "column": 0,
                    "severity": "warning",
                    "message": "'%s' imported but unused" % name,
                })
        return findings

    def get_completions(self, code, line, column):
        try:
            import jedi
        except ImportError:
            return []
        try:
            script = jedi.Script(code=code)
            completions = script.complete(line=line, column=column)
        except Exception:
            return []
        out = []
        for c in completions:
            kind = "other"
            if c.type == "function":
                kind = "function"
            elif c.type == "class":
                kind = "class"
            elif c.type == "module":
                kind = "module"
            elif c.type == "keyword":
                kind = "keyword"
            elif c.type in ("statement", "instance", "param"):
                kind = "variable"
            out.append({
                "label": c.name,
                "detail": c.description or "",
                "documentation": (c.docstring() or ""),
                "kind": kind,
            })
        return out

    def version(self):
        return "python " + sys.version.split()[0]

    def list_modules(self):
        return sorted(sys.modules.keys())

    def clear_globals(self):
        self._globals = {"__name__": "__bridge__", "__builtins__": __builtins__}
        return None


def _respond(success, result=None, error=None, tb=None):
    resp = {"success": success}
    if success:
        try:
            body = json.dumps(result, cls=_SafeEncoder)
        except Exception:
            sys.stdout.write(json.dumps({"success": False, "error": "SERIALIZATION"}) + "\n")
            sys.stdout.flush()
            return
        resp["result"] = json.loads(body)
    else:
        resp["error"] = error
        if tb:
            resp["traceback"] = tb
    sys.stdout.write(json.dumps(resp, cls=_SafeEncoder) + "\n")
    sys.stdout.flush()


def main():
    sys.stdout.write(json.dumps({"status": "ready"}) + "\n")
    sys.stdout.flush()

    bridge = Bridge()

    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        try:
            req = json.loads(line)
        except Exception:
            _respond(False, error="INVALID_JSON")
            continue

        command = req.get("command")
        try:
            if command == "execute":
                result = bridge.execute(req.get("code", ""), req.get("variables") or {}, req.get("security_mode") or "RESTRICTED")
                _respond(True, result)
            elif command == "evaluate":
                result = bridge.evaluate(req.get("expression", ""), req.get("variables") or {}, req.get("security_mode") or "RESTRICTED")
                _respond(True, result)
            elif command == "call_module":
                result = bridge.call_module(req.get("module"), req.get("function"), req.get("args"), req.get("kwargs"), req.get("security_mode") or "RESTRICTED")
                _respond(True, result)
            elif command == "check_syntax":
                _respond(True, bridge.check_syntax(req.get("code", "")))
            elif command == "get_completions":
                _respond(True, bridge.get_completions(req.get("code", ""), req.get("line", 1), req.get("column", 0)))
            elif command == "version":
                _respond(True, bridge.version())
            elif command == "list_modules":
                _respond(True, bridge.list_modules())
            elif command == "clear_globals":
                _respond(True, bridge.clear_globals())
            elif command == "ping":
                _respond(True, None)
            elif command == "shutdown":
                _respond(True, None)
                return
            else:
                _respond(False, error="UNKNOWN_COMMAND")
        except _SecurityError as exc:
            _respond(False, error="SECURITY: %s" % exc)
        except Exception as exc:
            _respond(False, error="%s: %s" % (type(exc).__name__, exc), tb=traceback.format_exc())


if __name__ == "__main__":
    main()
`

// WriteTo writes Source to a fresh file under dir and returns its path.
// Each call produces a new temp file so that concurrently-started
// Executors never race on the same inode.
func WriteTo(dir string) (string, error) {
	f, err := os.CreateTemp(dir, "bridge-*.py")
	if err != nil {
		return "", fmt.Errorf("create bridge script: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(Source); err != nil {
		return "", fmt.Errorf("write bridge script: %w", err)
	}
	return f.Name(), nil
}

// DefaultDir returns the directory WriteTo should use when the caller has
// no stronger preference, following the OS temp-dir convention the
// teacher's LocalExecutor uses for its own scratch files.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "bridge-engine")
}
