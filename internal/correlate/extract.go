package correlate

import (
	"strings"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

var (
	instancesPattern = tree.MustParsePattern("EC2.Regions.*.Instances[*]")
	rolesPattern     = tree.MustParsePattern("IAM.Roles[*]")
	trailRegions     = tree.MustParsePattern("CloudTrail.Regions.*")
)

// instance is a live EC2 instance as seen by correlation rules.
type instance struct {
	ID         string
	Region     string
	Path       string
	ProfileArn string
}

// deadStates are the instance states that no longer count as running
// workload.
var deadStates = map[string]bool{
	"terminated":    true,
	"shutting-down": true,
}

// liveInstances lists non-terminated instances in document order.
func liveInstances(root *tree.Node) []instance {
	var out []instance
	for _, m := range tree.MatchAll(root, instancesPattern) {
		if deadStates[text(m.Node, "State", "Name")] {
			continue
		}
		out = append(out, instance{
			ID:         text(m.Node, "InstanceId"),
			Region:     m.Path[2].Key,
			Path:       m.Path.String(),
			ProfileArn: text(m.Node, "IamInstanceProfile", "Arn"),
		})
	}
	return out
}

// text returns the leaf text at the given keys below n, or "".
func text(n *tree.Node, keys ...string) string {
	cur := n
	for _, k := range keys {
		next, ok := cur.Child(k)
		if !ok {
			return ""
		}
		cur = next
	}
	return cur.Text()
}

// flag reads a boolean leaf, accepting "true"/"false" strings.
func flag(n *tree.Node, key string) bool {
	c, ok := n.Child(key)
	if !ok {
		return false
	}
	if b, ok := c.BoolValue(); ok {
		return b
	}
	return strings.EqualFold(c.Text(), "true")
}

// under reports whether path equals prefix or addresses a node below it.
func under(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '.' || rest[0] == '['
}

func instanceIDs(list []instance) []string {
	ids := make([]string, len(list))
	for i, in := range list {
		ids[i] = in.ID
	}
	return ids
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ", ")
}
