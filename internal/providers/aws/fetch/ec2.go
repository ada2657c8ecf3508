package awsfetch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// fetchEC2Region returns {"Instances": [...], "SecurityGroups": [...]} for
// one region.
func fetchEC2Region(ctx context.Context, client ec2APIClient, region string) (*tree.Node, error) {
	instances := tree.NewSeq()
	ip := ec2svc.NewDescribeInstancesPaginator(client, &ec2svc.DescribeInstancesInput{})
	for ip.HasMorePages() {
		page, err := ip.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe instances in %s: %w", region, err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				instances.Append(instanceNode(inst))
			}
		}
	}

	groups := tree.NewSeq()
	gp := ec2svc.NewDescribeSecurityGroupsPaginator(client, &ec2svc.DescribeSecurityGroupsInput{})
	for gp.HasMorePages() {
		page, err := gp.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe security groups in %s: %w", region, err)
		}
		for _, sg := range page.SecurityGroups {
			groups.Append(securityGroupNode(sg))
		}
	}

	return tree.NewMap().
		Set("Instances", instances).
		Set("SecurityGroups", groups), nil
}

func instanceNode(inst ec2types.Instance) *tree.Node {
	n := tree.NewMap()
	setString(n, "InstanceId", inst.InstanceId)
	n.Set("InstanceType", tree.String(string(inst.InstanceType)))
	if inst.State != nil {
		n.Set("State", tree.NewMap().Set("Name", tree.String(string(inst.State.Name))))
	}
	setString(n, "PrivateIpAddress", inst.PrivateIpAddress)
	setString(n, "PublicIpAddress", inst.PublicIpAddress)
	if inst.IamInstanceProfile != nil {
		p := tree.NewMap()
		setString(p, "Arn", inst.IamInstanceProfile.Arn)
		setString(p, "Id", inst.IamInstanceProfile.Id)
		n.Set("IamInstanceProfile", p)
	}
	sgs := tree.NewSeq()
	for _, g := range inst.SecurityGroups {
		sg := tree.NewMap()
		setString(sg, "GroupId", g.GroupId)
		setString(sg, "GroupName", g.GroupName)
		sgs.Append(sg)
	}
	n.Set("SecurityGroups", sgs)
	setString(n, "VpcId", inst.VpcId)
	setTime(n, "LaunchTime", inst.LaunchTime)
	return n
}

func securityGroupNode(sg ec2types.SecurityGroup) *tree.Node {
	n := tree.NewMap()
	setString(n, "GroupId", sg.GroupId)
	setString(n, "GroupName", sg.GroupName)
	setString(n, "Description", sg.Description)
	setString(n, "VpcId", sg.VpcId)
	n.Set("IpPermissions", permissionsNode(sg.IpPermissions))
	n.Set("IpPermissionsEgress", permissionsNode(sg.IpPermissionsEgress))
	return n
}

// permissionsNode flattens the CIDR range structs to plain strings so rules
// can use contains on IpRanges directly.
func permissionsNode(perms []ec2types.IpPermission) *tree.Node {
	seq := tree.NewSeq()
	for _, p := range perms {
		n := tree.NewMap()
		n.Set("IpProtocol", tree.String(aws.ToString(p.IpProtocol)))
		setInt32(n, "FromPort", p.FromPort)
		setInt32(n, "ToPort", p.ToPort)

		v4 := make([]string, 0, len(p.IpRanges))
		for _, r := range p.IpRanges {
			v4 = append(v4, aws.ToString(r.CidrIp))
		}
		v6 := make([]string, 0, len(p.Ipv6Ranges))
		for _, r := range p.Ipv6Ranges {
			v6 = append(v6, aws.ToString(r.CidrIpv6))
		}
		groups := make([]string, 0, len(p.UserIdGroupPairs))
		for _, g := range p.UserIdGroupPairs {
			groups = append(groups, aws.ToString(g.GroupId))
		}
		n.Set("IpRanges", stringSeq(v4))
		n.Set("Ipv6Ranges", stringSeq(v6))
		n.Set("UserIdGroupPairs", stringSeq(groups))
		seq.Append(n)
	}
	return seq
}
