package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// Snapshot is the point-in-time configuration tree of one service.
// Root is a mapping with a single key, the service label, so rule paths
// such as IAM.Roles[*] resolve directly against it.
type Snapshot struct {
	Service     Service
	Environment string
	Region      string
	FetchedAt   time.Time
	Root        *tree.Node
}

// New wraps data under the service label.
func New(svc Service, data *tree.Node, region string, fetchedAt time.Time) *Snapshot {
	if data == nil {
		data = tree.NewMap()
	}
	return &Snapshot{
		Service:   svc,
		Region:    region,
		FetchedAt: fetchedAt.UTC(),
		Root:      tree.NewMap().Set(svc.Label(), data),
	}
}

// Data returns the service data below the label, or nil when absent.
func (s *Snapshot) Data() *tree.Node {
	if s == nil {
		return nil
	}
	n, _ := s.Root.Child(s.Service.Label())
	return n
}

type document struct {
	Service     Service    `json:"service"`
	Environment string     `json:"environment,omitempty"`
	Region      string     `json:"region,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Data        *tree.Node `json:"data"`
}

// Encode serialises the snapshot as JSON with document-ordered data.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.MarshalIndent(document{
		Service:     s.Service,
		Environment: s.Environment,
		Region:      s.Region,
		FetchedAt:   s.FetchedAt,
		Data:        s.Data(),
	}, "", "  ")
}

// Decode parses a snapshot written by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if !doc.Service.Known() {
		return nil, fmt.Errorf("decode snapshot: unknown service %q", doc.Service)
	}
	snap := New(doc.Service, doc.Data, doc.Region, doc.FetchedAt)
	snap.Environment = doc.Environment
	return snap, nil
}
