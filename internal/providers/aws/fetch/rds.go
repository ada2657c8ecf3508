package awsfetch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdssvc "github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// fetchRDSRegion returns {"DBInstances": [...]} for one region.
func fetchRDSRegion(ctx context.Context, client rdsAPIClient, region string) (*tree.Node, error) {
	dbs := tree.NewSeq()
	p := rdssvc.NewDescribeDBInstancesPaginator(client, &rdssvc.DescribeDBInstancesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe DB instances in %s: %w", region, err)
		}
		for _, db := range page.DBInstances {
			n := tree.NewMap()
			setString(n, "DBInstanceIdentifier", db.DBInstanceIdentifier)
			setString(n, "DBInstanceArn", db.DBInstanceArn)
			setString(n, "DBInstanceClass", db.DBInstanceClass)
			setString(n, "DBInstanceStatus", db.DBInstanceStatus)
			setString(n, "Engine", db.Engine)
			setString(n, "EngineVersion", db.EngineVersion)
			n.Set("PubliclyAccessible", tree.Bool(aws.ToBool(db.PubliclyAccessible)))
			n.Set("StorageEncrypted", tree.Bool(aws.ToBool(db.StorageEncrypted)))
			n.Set("MultiAZ", tree.Bool(aws.ToBool(db.MultiAZ)))
			n.Set("AutoMinorVersionUpgrade", tree.Bool(aws.ToBool(db.AutoMinorVersionUpgrade)))
			n.Set("DeletionProtection", tree.Bool(aws.ToBool(db.DeletionProtection)))
			setInt32(n, "BackupRetentionPeriod", db.BackupRetentionPeriod)

			sgs := make([]string, 0, len(db.VpcSecurityGroups))
			for _, g := range db.VpcSecurityGroups {
				sgs = append(sgs, aws.ToString(g.VpcSecurityGroupId))
			}
			n.Set("VpcSecurityGroups", stringSeq(sgs))
			dbs.Append(n)
		}
	}
	return tree.NewMap().Set("DBInstances", dbs), nil
}
