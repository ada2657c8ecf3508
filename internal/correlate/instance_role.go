package correlate

import (
	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// RuleUnusedRole is the ruleset rule whose findings this correlation
// suppresses for roles in use.
const RuleUnusedRole = "iam-unused-role"

// InstanceRoleRule attributes IAM roles to the EC2 instances that run with
// them. Instances reference an instance profile ARN; roles list the
// instance profiles they belong to. The two are joined on that ARN.
//
// Effects: an "iam-unused-role" finding for a role used by a live instance
// is suppressed, and every other finding on such a role gains the list of
// instances using it.
type InstanceRoleRule struct{}

func (InstanceRoleRule) ID() string { return "instance-role-attachment" }

func (InstanceRoleRule) Requires() []snapshot.Service {
	return []snapshot.Service{snapshot.IAM, snapshot.EC2}
}

type role struct {
	Path string
	Arn  string
}

func (r InstanceRoleRule) Correlate(in Input) models.CorrelationResults {
	var res models.CorrelationResults
	iam, ec2 := in[snapshot.IAM], in[snapshot.EC2]
	if iam == nil || ec2 == nil {
		return res
	}

	byProfile := make(map[string][]role)
	var roles []role
	for _, m := range tree.MatchAll(iam.Snapshot.Root, rolesPattern) {
		rl := role{Path: m.Path.String(), Arn: text(m.Node, "Arn")}
		roles = append(roles, rl)
		profiles, _ := m.Node.Child("InstanceProfiles")
		for _, p := range profiles.Items() {
			if arn := text(p, "Arn"); arn != "" {
				byProfile[arn] = append(byProfile[arn], rl)
			}
		}
	}

	usedBy := make(map[string][]instance)
	for _, inst := range liveInstances(ec2.Snapshot.Root) {
		if inst.ProfileArn == "" {
			continue
		}
		for _, rl := range byProfile[inst.ProfileArn] {
			usedBy[rl.Path] = append(usedBy[rl.Path], inst)
			res.Facts = append(res.Facts, models.CorrelationFact{
				Kind:    r.ID(),
				From:    models.EntityRef{Service: string(snapshot.EC2), Path: inst.Path, ID: inst.ID},
				To:      models.EntityRef{Service: string(snapshot.IAM), Path: rl.Path, ID: rl.Arn},
				JoinKey: inst.ProfileArn,
			})
		}
	}

	for _, rl := range roles {
		insts := usedBy[rl.Path]
		if len(insts) == 0 {
			continue
		}
		ids := instanceIDs(insts)
		for _, f := range iam.Findings {
			if !under(f.Path, rl.Path) {
				continue
			}
			if f.RuleID == RuleUnusedRole && f.Path == rl.Path {
				res.Suppressions = append(res.Suppressions, models.Suppression{
					FindingKey:  f.Key(),
					Correlation: r.ID(),
					Reason:      "role is used by running instances: " + joinIDs(ids),
				})
				continue
			}
			res.Annotations = append(res.Annotations, models.Annotation{
				FindingKey:  f.Key(),
				Correlation: r.ID(),
				Context:     map[string]any{"instances": ids},
			})
		}
	}
	return res
}
