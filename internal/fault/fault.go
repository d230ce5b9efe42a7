// Package fault defines the error taxonomy for the deployment pipeline.
//
// Every stage error is terminal for the run: the pipeline stops at the
// first fault, logs it once, and the process exits with the fault's code
// so calling automation can tell failure classes apart.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// Input is a malformed or missing operator input, caught pre-flight.
	Input Kind = iota

	// Sync means the local source working copy could not be updated.
	Sync

	// Validation means the working copy holds no deployable descriptor.
	Validation

	// Connectivity means the initial reachability probe to the host failed.
	Connectivity

	// Prepare means remote environment setup failed.
	Prepare

	// Startup means the new instance did not come up.
	Startup

	// Proxy means the reverse-proxy rule install or syntax check failed.
	Proxy

	// InternalValidation means a service or health check failed on the
	// host itself.
	InternalValidation

	// ExternalValidation means the host is healthy internally but not
	// reachable from outside (firewall, security group).
	ExternalValidation
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Sync:
		return "sync"
	case Validation:
		return "validation"
	case Connectivity:
		return "connectivity"
	case Prepare:
		return "prepare"
	case Startup:
		return "startup"
	case Proxy:
		return "proxy"
	case InternalValidation:
		return "internal-validation"
	case ExternalValidation:
		return "external-validation"
	default:
		return "unknown"
	}
}

// Process exit codes. Each precondition failure gets its own code so
// shell callers can branch on the failure class.
const (
	CodeMissingRepoURL     = 2
	CodeMissingToken       = 3
	CodeMissingUser        = 4
	CodeBadHost            = 5
	CodeBadKeyPath         = 6
	CodeBadPort            = 7
	CodeSync               = 8
	CodeNoDescriptor       = 9
	CodeConnectivity       = 10
	CodePrepare            = 11
	CodeStartup            = 12
	CodeProxy              = 13
	CodeInternalValidation = 14
	CodeExternalValidation = 15
)

// Fault is a classified, terminal pipeline error.
type Fault struct {
	Kind Kind
	Code int
	Err  error
	msg  string
}

// New creates a fault without an underlying cause.
func New(kind Kind, code int, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault around an underlying cause.
func Wrap(kind Kind, code int, err error, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Code: code, Err: err, msg: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.msg, f.Err)
	}
	return f.msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// ExitCode returns the process exit code for an error: 0 for nil, the
// fault's code for classified errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return 1
}

// KindOf reports the kind of a classified error.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
