package tunnel

import (
	"fmt"
	"strconv"
	"strings"
)

// ProjectIDRange is an inclusive range of sentry project ids. A single id is a
// range with From == To.
type ProjectIDRange struct {
	From uint64
	To   uint64
}

// ParseProjectIDRange accepts "42" or "100-200".
func ParseProjectIDRange(s string) (ProjectIDRange, error) {
	s = strings.TrimSpace(s)
	from, to, isRange := strings.Cut(s, "-")
	if !isRange {
		to = from
	}

	first, err := strconv.ParseUint(strings.TrimSpace(from), 10, 64)
	if err != nil {
		return ProjectIDRange{}, fmt.Errorf("invalid project id %q: %w", s, err)
	}
	last, err := strconv.ParseUint(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return ProjectIDRange{}, fmt.Errorf("invalid project id %q: %w", s, err)
	}
	if last < first {
		return ProjectIDRange{}, fmt.Errorf("invalid project id range %q: end is before start", s)
	}

	return ProjectIDRange{From: first, To: last}, nil
}

func (r ProjectIDRange) contains(id uint64) bool {
	return id >= r.From && id <= r.To
}

// AccessPolicy decides which envelopes may leave the tunnel. It is built once
// at startup and is safe for concurrent use because it is never modified.
type AccessPolicy struct {
	hosts    []string
	projects []ProjectIDRange
}

// NewAccessPolicy copies hosts and projects; later changes to the arguments do
// not affect the policy.
func NewAccessPolicy(hosts []string, projects []ProjectIDRange) *AccessPolicy {
	return &AccessPolicy{
		hosts:    append([]string(nil), hosts...),
		projects: append([]ProjectIDRange(nil), projects...),
	}
}

func (p *AccessPolicy) ProjectIDIsAllowed(id uint64) bool {
	for _, r := range p.projects {
		if r.contains(id) {
			return true
		}
	}
	return false
}

// HostIsAllowed compares the dsn host byte for byte with the configured hosts.
func (p *AccessPolicy) HostIsAllowed(dsn *DSN) bool {
	for _, host := range p.hosts {
		if host == dsn.Host {
			return true
		}
	}
	return false
}

// Check runs the project check before the host check, so a dsn failing both
// reports ErrProjectNotAllowed.
func (p *AccessPolicy) Check(dsn *DSN) error {
	if !p.ProjectIDIsAllowed(dsn.ProjectID) {
		return fmt.Errorf("%w: %d", ErrProjectNotAllowed, dsn.ProjectID)
	}
	if !p.HostIsAllowed(dsn) {
		return ErrHostNotAllowed
	}
	return nil
}
