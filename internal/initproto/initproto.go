// Package initproto is the wire format the parent orchestrator and the
// re-exec'd droidspaces-init child exchange over two pipes (the request on
// fd 3, the response on fd 4). The child is the same binary invoked under a
// hidden argv[1] marker, the idiomatic
// Go container-runtime self-reexec pattern (the shape runc's libcontainer
// calls nsenter-via-reexec) — used here instead of the teacher's C-helper
// stage1/stage2/master split, since Droidspaces has no privilege boundary
// to enforce between them (spec §1 Non-goals: no unprivileged operation).
package initproto

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/maazm7d/droidspaces/pkg/config"
)

// Request is everything the child needs to finish booting a container that
// the parent already gathered while it still had the host's view of the
// world: the validated config, the resolved rootfs mount point, the
// pre-pivot GPU GID set, platform facts, and the PTY slave to take as its
// controlling terminal.
type Request struct {
	Config      config.Config
	RootfsMount string
	GPUGids     []uint32
	IsAndroid   bool
	KernelMajor int
	KernelMinor int
	SlaveFd     int
	SlavePath   string
}

// Response is the single line the child writes back over fd 4 once it has
// either finished booting (ready) or hit a fatal error before exec of init.
type Response struct {
	Ready bool
	Error string
}

// WriteRequest serializes req as a single JSON line to w.
func WriteRequest(w io.Writer, req Request) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("encode init request: %w", err)
	}
	return nil
}

// ReadRequest reads and decodes one JSON line from r.
func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("decode init request: %w", err)
	}
	return req, nil
}

// WriteResponse serializes resp as a single JSON line to w.
func WriteResponse(w io.Writer, resp Response) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encode init response: %w", err)
	}
	return nil
}

// ReadResponse reads and decodes one JSON line from r.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decode init response: %w", err)
	}
	return resp, nil
}
