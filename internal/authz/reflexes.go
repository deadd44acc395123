package authz

import (
	"context"
	"strings"
)

// CommandReflexes returns the built-in gates over command execution
// requests: destructive commands, privilege escalation and raw network
// access. They run under the reflex wrapper like every constraint, so a
// failure inside a check denies. Requests that are not command executions
// pass through untouched.
func CommandReflexes() []Constraint {
	return []Constraint{
		patternReflex{name: "destructive_command", patterns: destructivePatterns},
		patternReflex{name: "privilege_escalation", patterns: escalationPatterns},
		patternReflex{name: "raw_network", patterns: networkPatterns},
	}
}

var destructivePatterns = []string{
	"rm -rf", "dd if=", "mkfs", "chmod -r 777", "> /dev/sd", ":(){",
}

var escalationPatterns = []string{
	"sudo ", "su -", "passwd", "chpasswd", "chmod u+s", "setcap",
}

var networkPatterns = []string{
	"curl ", "wget ", "nc ", "telnet ", "ssh ", "scp ", "sftp ",
}

type patternReflex struct {
	name     string
	patterns []string
}

func (r patternReflex) Name() string { return r.name }

func (r patternReflex) Check(ctx context.Context, req Request) (bool, error) {
	cmd := commandFrom(req)
	if cmd == "" {
		return true, nil
	}
	lower := strings.ToLower(cmd)
	for _, p := range r.patterns {
		if strings.Contains(lower, p) {
			return false, nil
		}
	}
	return true, nil
}

// commandFrom extracts the command line a request asks to execute, or ""
// when the request is not an execution. The command rides in the resource
// path after the action segment: scheme://domain/exec/<command>.
func commandFrom(req Request) string {
	if req.Action != "exec" && req.Action != "execute" {
		return ""
	}
	_, rest, ok := strings.Cut(req.ResourceURI, "://")
	if !ok {
		return ""
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
