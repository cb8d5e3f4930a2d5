package readiness

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/embedded-cassandra/pkg/version"
)

// State is the readiness of one transport.
type State int

const (
	// Unknown means neither the start nor the disabled line has been seen.
	Unknown State = iota
	// Ready means the transport announced its listening address.
	Ready
	// Disabled means the transport will not start, or does not exist.
	Disabled
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Status is what a detector has learned so far. SSLPort is only set by the
// encrypted variant of the start line.
type Status struct {
	State   State
	Host    string
	Port    int
	SSLPort int
}

// Done reports whether the transport no longer needs to be waited for.
func (s Status) Done() bool {
	return s.State != Unknown
}

// Rules are the patterns of one transport. Started must capture the host and
// port and may capture "encrypted" or "unencrypted" as a third group.
type Rules struct {
	Started  *regexp.Regexp
	Disabled *regexp.Regexp
}

var (
	NativeRules = Rules{
		Started:  regexp.MustCompile(`(?i)listening for cql clients on\s+(?:[^/\s]*/)?(\S+):(\d+)\s*(?:\((encrypted|unencrypted)\))?`),
		Disabled: regexp.MustCompile(`(?i)not starting native transport`),
	}

	RPCRules = Rules{
		Started:  regexp.MustCompile(`(?i)binding thrift service to\s+(?:[^/\s]*/)?(\S+):(\d+)`),
		Disabled: regexp.MustCompile(`(?i)not starting rpc server`),
	}
)

// Transition returns the status after seeing line. The first start or
// disabled line decides the state for good; a later start line of the other
// variant only fills a port that is still empty.
func Transition(s Status, line string, r Rules) Status {
	if m := r.Started.FindStringSubmatch(line); m != nil {
		port, err := strconv.Atoi(m[2])
		if err != nil {
			return s
		}
		encrypted := len(m) > 3 && strings.EqualFold(m[3], "encrypted")

		switch s.State {
		case Unknown:
			s = Status{State: Ready, Host: strings.Trim(m[1], "[]")}
			if encrypted {
				s.SSLPort = port
			} else {
				s.Port = port
			}
		case Ready:
			if encrypted && s.SSLPort == 0 {
				s.SSLPort = port
			} else if !encrypted && s.Port == 0 {
				s.Port = port
			}
		}
		return s
	}

	if s.State == Unknown && r.Disabled != nil && r.Disabled.MatchString(line) {
		return Status{State: Disabled}
	}
	return s
}

// Consumer receives output lines of the server.
type Consumer interface {
	Accept(line string)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(line string)

// Accept calls f(line).
func (f ConsumerFunc) Accept(line string) {
	f(line)
}

// Detector tracks the readiness of one transport from the server output.
// It is safe for concurrent use.
type Detector struct {
	name  string
	rules Rules

	mu     sync.Mutex
	status Status
}

// NewDetector creates a detector starting at initial.
func NewDetector(name string, rules Rules, initial Status) *Detector {
	return &Detector{name: name, rules: rules, status: initial}
}

// NativeTransport returns the CQL detector for version v. Versions before 1.2
// have no native transport, and before 2.0 a disabled transport is not
// announced, so both start out disabled.
func NativeTransport(v version.Version, enabled bool) *Detector {
	initial := Status{}
	if !v.AtLeast(1, 2, 0) || (!enabled && !v.AtLeast(2, 0, 0)) {
		initial.State = Disabled
	}
	return NewDetector("native", NativeRules, initial)
}

// RPCTransport returns the Thrift detector for version v. Thrift is gone in
// 4.0 and a disabled server is not announced before 2.0.
func RPCTransport(v version.Version, enabled bool) *Detector {
	initial := Status{}
	if v.AtLeast(4, 0, 0) || (!enabled && !v.AtLeast(2, 0, 0)) {
		initial.State = Disabled
	}
	return NewDetector("rpc", RPCRules, initial)
}

// Name returns the transport name.
func (d *Detector) Name() string {
	return d.name
}

// Accept feeds one output line.
func (d *Detector) Accept(line string) {
	d.mu.Lock()
	d.status = Transition(d.status, line, d.rules)
	d.mu.Unlock()
}

// Ready reports whether the transport is ready or known to be disabled.
func (d *Detector) Ready() bool {
	return d.Status().Done()
}

// Status returns a snapshot of the current status.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}
