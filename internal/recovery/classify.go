// Package recovery classifies pipeline errors and maps each class to a
// concrete retry/adaptation strategy.
package recovery

import (
	"errors"
	"strings"

	"github.com/tcooper/warden/internal/process"
	"github.com/tcooper/warden/internal/workspace"
)

// Type is the classified category of a pipeline error.
type Type string

const (
	ConfigurationError Type = "configuration_error"
	ResourceLimit      Type = "resource_limit"
	APILimit           Type = "api_limit"
	Timeout            Type = "timeout"
	NetworkError       Type = "network_error"
	UnknownError       Type = "unknown_error"
)

// Classification is the classifier's verdict plus the guidance the
// reporting layer renders to users.
type Classification struct {
	Type        Type     `json:"type"`
	Recoverable bool     `json:"recoverable"`
	Causes      []string `json:"causes"`
}

// keywordGroups are checked in priority order against the error text.
// Earlier groups win when an error mentions several concerns.
var keywordGroups = []struct {
	typ         Type
	recoverable bool
	keywords    []string
	causes      []string
}{
	{
		typ:         ConfigurationError,
		recoverable: true,
		keywords:    []string{"configuration", "config invalid", "permission denied", "unauthorized", "invalid token", "authentication"},
		causes: []string{
			"generated configuration is invalid or incomplete",
			"credentials or tokens are missing or expired",
		},
	},
	{
		typ:         ResourceLimit,
		recoverable: false,
		keywords:    []string{"out of memory", "memory", "disk", "no space", "resource", "cannot allocate"},
		causes: []string{
			"process exceeded its memory or disk ceiling",
			"host is under resource pressure",
		},
	},
	{
		typ:         APILimit,
		recoverable: true,
		keywords:    []string{"rate limit", "quota", "429", "too many requests", "throttl"},
		causes: []string{
			"upstream API rate limit reached",
			"account quota exhausted",
		},
	},
	{
		typ:         Timeout,
		recoverable: true,
		keywords:    []string{"timeout", "timed out", "deadline exceeded"},
		causes: []string{
			"the run exceeded its wall-clock budget",
			"the task may be larger than the configured timeout allows",
		},
	},
	{
		typ:         NetworkError,
		recoverable: true,
		keywords:    []string{"network", "connection refused", "connection reset", "dns", "no such host", "unreachable", "tls"},
		causes: []string{
			"transient network failure reaching an upstream service",
			"DNS resolution or TLS handshake failed",
		},
	},
}

// Classify maps an error to a Classification. Typed errors from the
// process and workspace layers map directly; everything else falls back
// to keyword matching over the error text in fixed priority order.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Type: UnknownError, Causes: []string{"no error provided"}}
	}

	if c, ok := classifyTyped(err); ok {
		return c
	}

	text := strings.ToLower(err.Error())
	for _, g := range keywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(text, kw) {
				return Classification{Type: g.typ, Recoverable: g.recoverable, Causes: g.causes}
			}
		}
	}

	return Classification{
		Type: UnknownError,
		Causes: []string{
			"unrecognized failure; inspect the debug bundle and agent logs",
		},
	}
}

func classifyTyped(err error) (Classification, bool) {
	var spawnErr *process.SpawnError
	if errors.As(err, &spawnErr) {
		return Classification{
			Type: ConfigurationError,
			// Spawn failures are config problems (missing binary, bad
			// path) and a fallback configuration will not conjure one.
			Recoverable: false,
			Causes: []string{
				"agent binary not found or not executable",
				"check the configured agent path",
			},
		}, true
	}

	var timeoutErr *process.TimeoutError
	if errors.As(err, &timeoutErr) {
		return Classification{
			Type:        Timeout,
			Recoverable: true,
			Causes: []string{
				"the agent exceeded its wall-clock timeout",
				"a larger timeout or reduced scope may let the run finish",
			},
		}, true
	}

	var hangErr *process.HangError
	if errors.As(err, &hangErr) {
		return Classification{
			Type: ResourceLimit,
			// A silent process was killed, not slow: more wall clock
			// would not have helped, so the hang is treated like a
			// breached limit rather than a timeout.
			Recoverable: false,
			Causes: []string{
				"the agent produced no output within the silence window and was killed",
				"the process may have been stuck waiting on unavailable input",
			},
		}, true
	}

	var resErr *process.ResourceError
	if errors.As(err, &resErr) {
		return Classification{
			Type:        ResourceLimit,
			Recoverable: false,
			Causes: []string{
				"the agent exceeded its memory or CPU ceiling",
				"retrying with identical limits would fail the same way",
			},
		}, true
	}

	var concErr *process.ConcurrencyLimitError
	if errors.As(err, &concErr) {
		return Classification{
			Type:        ResourceLimit,
			Recoverable: true,
			Causes: []string{
				"all execution slots are busy",
				"the job can retry once a slot frees up",
			},
		}, true
	}

	var quotaErr *workspace.QuotaError
	if errors.As(err, &quotaErr) {
		return Classification{
			Type:        ResourceLimit,
			Recoverable: true,
			Causes: []string{
				"workspace quota reached; stale workspaces will be swept",
				"waiting and retrying usually succeeds",
			},
		}, true
	}

	var gitErr *workspace.GitError
	if errors.As(err, &gitErr) {
		return Classification{
			Type:        NetworkError,
			Recoverable: true,
			Causes: []string{
				"git operation against the remote failed",
				"the remote may be temporarily unavailable",
			},
		}, true
	}

	return Classification{}, false
}
