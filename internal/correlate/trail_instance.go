package correlate

import (
	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

const (
	// RuleNoTrailCoverage is the derived finding emitted for a region that
	// runs instances but has no logging trail.
	RuleNoTrailCoverage = "cloudtrail-no-coverage-with-instances"

	// RuleTrailNotLogging is escalated when the stopped trail covers a
	// region with running instances.
	RuleTrailNotLogging = "cloudtrail-not-logging"
)

// TrailInstanceRule relates CloudTrail coverage to the regions where EC2
// instances run. The join key is the region name.
//
// Effects: a region with live instances and no logging trail yields a
// derived HIGH finding; CloudTrail findings in regions with instances gain
// the instance list; a stopped trail covering such a region is escalated to
// HIGH.
type TrailInstanceRule struct{}

func (TrailInstanceRule) ID() string { return "trail-instance-coverage" }

func (TrailInstanceRule) Requires() []snapshot.Service {
	return []snapshot.Service{snapshot.CloudTrail, snapshot.EC2}
}

type trail struct {
	Path        string
	Arn         string
	Region      string
	Logging     bool
	MultiRegion bool
}

func (r TrailInstanceRule) Correlate(in Input) models.CorrelationResults {
	var res models.CorrelationResults
	ct, ec2 := in[snapshot.CloudTrail], in[snapshot.EC2]
	if ct == nil || ec2 == nil {
		return res
	}

	var regionsWithInstances []string
	byRegion := make(map[string][]instance)
	for _, inst := range liveInstances(ec2.Snapshot.Root) {
		if _, seen := byRegion[inst.Region]; !seen {
			regionsWithInstances = append(regionsWithInstances, inst.Region)
		}
		byRegion[inst.Region] = append(byRegion[inst.Region], inst)
	}

	var trails []trail
	for _, rm := range tree.MatchAll(ct.Snapshot.Root, trailRegions) {
		region := rm.Path[len(rm.Path)-1].Key
		list, _ := rm.Node.Child("Trails")
		for i, t := range list.Items() {
			trails = append(trails, trail{
				Path:        rm.Path.Append(tree.Key("Trails")).Append(tree.Idx(i)).String(),
				Arn:         text(t, "TrailARN"),
				Region:      region,
				Logging:     flag(t, "IsLogging"),
				MultiRegion: flag(t, "IsMultiRegionTrail"),
			})
		}
	}

	covers := func(t trail, region string) bool {
		return t.MultiRegion || t.Region == region
	}

	for _, region := range regionsWithInstances {
		insts := byRegion[region]
		covered := false
		for _, t := range trails {
			if !t.Logging || !covers(t, region) {
				continue
			}
			covered = true
			for _, inst := range insts {
				res.Facts = append(res.Facts, models.CorrelationFact{
					Kind:    r.ID(),
					From:    models.EntityRef{Service: string(snapshot.CloudTrail), Path: t.Path, ID: t.Arn},
					To:      models.EntityRef{Service: string(snapshot.EC2), Path: inst.Path, ID: inst.ID},
					JoinKey: region,
				})
			}
		}
		if !covered {
			res.Derived = append(res.Derived, models.Finding{
				RuleID:      RuleNoTrailCoverage,
				Service:     string(snapshot.CloudTrail),
				Path:        regionPath(region),
				Severity:    models.SeverityHigh,
				Description: "Region runs EC2 instances but no CloudTrail trail is logging its activity.",
				Remediation: "Create or start a multi-region trail so activity against these instances is recorded.",
				Items:       instanceIDs(insts),
				Derived:     true,
				Context:     map[string]any{"region": region},
			})
		}
	}

	for _, f := range ct.Findings {
		for _, region := range regionsWithInstances {
			if !under(f.Path, regionPath(region)) {
				continue
			}
			res.Annotations = append(res.Annotations, models.Annotation{
				FindingKey:  f.Key(),
				Correlation: r.ID(),
				Context:     map[string]any{"region": region, "instances": instanceIDs(byRegion[region])},
			})
		}
		if f.RuleID != RuleTrailNotLogging {
			continue
		}
		for _, t := range trails {
			if t.Path != f.Path {
				continue
			}
			var affected []instance
			for _, region := range regionsWithInstances {
				if covers(t, region) {
					affected = append(affected, byRegion[region]...)
				}
			}
			if len(affected) > 0 {
				res.Annotations = append(res.Annotations, models.Annotation{
					FindingKey:  f.Key(),
					Correlation: r.ID(),
					Context:     map[string]any{"instances_in_scope": instanceIDs(affected)},
					Severity:    models.SeverityHigh,
				})
			}
		}
	}
	return res
}

func regionPath(region string) string {
	return tree.Path{tree.Key(snapshot.CloudTrail.Label()), tree.Key("Regions"), tree.Key(region)}.String()
}
