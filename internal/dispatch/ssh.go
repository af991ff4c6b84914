package dispatch

import (
	"regexp"
	"strings"
)

var sshUserHostPattern = regexp.MustCompile(`(?i)^(ssh(?:\s+-[a-zA-Z0-9]+(?:\s+\S+)?)*)\s+(\S+)@(\S+)((?:\s+.*)?)$`)

var sshBasePattern = regexp.MustCompile(`^(ssh\s+\S+)`)

// MobileSSH rewrites an ssh command to log in as the mobile user on the
// same host. Non-ssh commands pass through unchanged.
func MobileSSH(command string) string {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(command)), "ssh ") {
		return command
	}
	m := sshUserHostPattern.FindStringSubmatch(command)
	if m == nil {
		return command
	}
	return m[1] + " mobile@" + m[3] + m[4]
}

// SSHBase extracts the leading "ssh <target>" prefix of a resolved command,
// used to build reachability checks and remote process probes. Returns ""
// when the command is not an ssh invocation.
func SSHBase(command string) string {
	m := sshBasePattern.FindStringSubmatch(strings.TrimSpace(command))
	if m == nil {
		return ""
	}
	return m[1]
}

// ShellQuote wraps a value in single quotes for a remote shell, escaping
// embedded quotes.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`|;&<>(){}*?#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// RemoteProcessProbe builds the remote pipeline that checks whether a
// process matching tag is still alive, excluding the probe itself.
func RemoteProcessProbe(tag string) string {
	quoted := ShellQuote(tag)
	return "ps auxww | grep -F -- " + quoted + " | grep -v -F -- 'grep -F -- " + quoted + "'"
}
