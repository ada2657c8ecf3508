// Package snapshot holds per-service configuration snapshots and the stores
// that persist them between runs.
package snapshot

import (
	"fmt"
	"strings"
)

// Service identifies one analyzed cloud service.
type Service string

const (
	CloudTrail Service = "cloudtrail"
	IAM        Service = "iam"
	EC2        Service = "ec2"
	RDS        Service = "rds"
	S3         Service = "s3"
)

// Priority is the fixed report order of services. It also lists every
// service the tool knows how to analyze.
var Priority = []Service{CloudTrail, IAM, EC2, RDS, S3}

var labels = map[Service]string{
	CloudTrail: "CloudTrail",
	IAM:        "IAM",
	EC2:        "EC2",
	RDS:        "RDS",
	S3:         "S3",
}

// Label is the root key under which the service's data sits in its
// snapshot tree, and the first segment of every rule path for it.
func (s Service) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// Known reports whether s is one of the analyzable services.
func (s Service) Known() bool {
	_, ok := labels[s]
	return ok
}

// Rank returns the position of s in Priority, or -1 for unknown services.
func (s Service) Rank() int {
	for i, p := range Priority {
		if p == s {
			return i
		}
	}
	return -1
}

// ParseService accepts a service identifier in any case.
func ParseService(v string) (Service, error) {
	s := Service(strings.ToLower(strings.TrimSpace(v)))
	if !s.Known() {
		return "", fmt.Errorf("unknown service %q (known: %s)", v, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names returns the known service identifiers in priority order.
func Names() []string {
	out := make([]string, len(Priority))
	for i, s := range Priority {
		out[i] = string(s)
	}
	return out
}

// Select resolves the analyzed-service list: the requested services (all
// known services when empty) minus skipped ones, in priority order.
func Select(requested, skipped []string) ([]Service, error) {
	want := make(map[Service]bool)
	if len(requested) == 0 {
		for _, s := range Priority {
			want[s] = true
		}
	}
	for _, r := range requested {
		s, err := ParseService(r)
		if err != nil {
			return nil, err
		}
		want[s] = true
	}
	for _, r := range skipped {
		s, err := ParseService(r)
		if err != nil {
			return nil, err
		}
		delete(want, s)
	}
	var out []Service
	for _, s := range Priority {
		if want[s] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("list of services to analyze is empty")
	}
	return out, nil
}
