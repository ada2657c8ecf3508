package awsfetch

import (
	"time"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// The set helpers leave a key out entirely when the SDK returned nil, so
// rules can tell "not configured" (absent) from an explicit value.

func setString(m *tree.Node, key string, v *string) {
	if v != nil {
		m.Set(key, tree.String(*v))
	}
}

func setBool(m *tree.Node, key string, v *bool) {
	if v != nil {
		m.Set(key, tree.Bool(*v))
	}
}

func setInt32(m *tree.Node, key string, v *int32) {
	if v != nil {
		m.Set(key, tree.Number(float64(*v)))
	}
}

func setTime(m *tree.Node, key string, v *time.Time) {
	if v != nil {
		m.Set(key, tree.String(v.UTC().Format(time.RFC3339)))
	}
}

func stringSeq(values []string) *tree.Node {
	seq := tree.NewSeq()
	for _, v := range values {
		seq.Append(tree.String(v))
	}
	return seq
}
