package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
)

func TestComparePaths(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"IAM.Roles[2]", "IAM.Roles[10]", -1},
		{"IAM.Roles[10]", "IAM.Roles[2]", 1},
		{"IAM.Roles[1]", "IAM.Roles[1]", 0},
		{"IAM.Roles[1]", "IAM.Roles[1].Arn", -1},
		{"IAM.Roles[9].Policies[10]", "IAM.Roles[9].Policies[3]", 1},
		{"EC2.Regions.eu-west-1", "EC2.Regions.eu-west-2", -1},
		{"IAM.Roles[01]", "IAM.Roles[1]", -1},
		{"IAM.Roles[3]", "IAM.Users[0]", -1},
		{"S3.Buckets[99999999999999999999]", "S3.Buckets[100000000000000000000]", -1},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ComparePaths(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
		assert.Equal(t, -tc.want, ComparePaths(tc.b, tc.a), "%s vs %s", tc.b, tc.a)
	}
}

func TestSortFindings_IndicesInNumericOrder(t *testing.T) {
	findings := []models.Finding{
		finding("iam", "iam-unused-role", "IAM.Roles[10]", models.SeverityHigh),
		finding("iam", "iam-unused-role", "IAM.Roles[1]", models.SeverityHigh),
		finding("iam", "iam-unused-role", "IAM.Roles[2]", models.SeverityHigh),
	}
	SortFindings(findings)

	var paths []string
	for _, f := range findings {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"IAM.Roles[1]", "IAM.Roles[2]", "IAM.Roles[10]"}, paths)
}
