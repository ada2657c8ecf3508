package awsfetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/tree"
)

// fetchIAM returns the account-level IAM data:
//
//	{"PasswordPolicy": {...}, "Roles": [...], "Users": [...], "Policies": [...]}
//
// PasswordPolicy is left out when the account has none. Policies holds
// customer managed policies with their default version document decoded.
func fetchIAM(ctx context.Context, client iamAPIClient, log zerolog.Logger) (*tree.Node, error) {
	out := tree.NewMap()

	pp, err := fetchPasswordPolicy(ctx, client)
	if err != nil {
		return nil, err
	}
	if pp != nil {
		out.Set("PasswordPolicy", pp)
	}

	if summary := fetchAccountSummary(ctx, client, log); summary != nil {
		out.Set("AccountSummary", summary)
	}

	roles, err := fetchRoles(ctx, client, log)
	if err != nil {
		return nil, err
	}
	out.Set("Roles", roles)

	users, err := fetchUsers(ctx, client, log)
	if err != nil {
		return nil, err
	}
	out.Set("Users", users)

	policies, err := fetchPolicies(ctx, client, log)
	if err != nil {
		return nil, err
	}
	out.Set("Policies", policies)
	return out, nil
}

// fetchAccountSummary keeps the root-account entries of GetAccountSummary.
// The call needs iam:GetAccountSummary; without it the key is left out.
func fetchAccountSummary(ctx context.Context, client iamAPIClient, log zerolog.Logger) *tree.Node {
	res, err := client.GetAccountSummary(ctx, &iamsvc.GetAccountSummaryInput{})
	if err != nil {
		log.Debug().Err(err).Msg("account summary unavailable")
		return nil
	}
	m := res.SummaryMap
	out := tree.NewMap()
	out.Set("AccountMFAEnabled", tree.Bool(m["AccountMFAEnabled"] > 0))
	out.Set("AccountAccessKeysPresent", tree.Number(float64(m["AccountAccessKeysPresent"])))
	return out
}

// fetchPasswordPolicy returns nil without error when no policy is set
// (GetAccountPasswordPolicy answers NoSuchEntity).
func fetchPasswordPolicy(ctx context.Context, client iamAPIClient) (*tree.Node, error) {
	res, err := client.GetAccountPasswordPolicy(ctx, &iamsvc.GetAccountPasswordPolicyInput{})
	if err != nil {
		var nse *iamtypes.NoSuchEntityException
		if errors.As(err, &nse) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account password policy: %w", err)
	}
	p := res.PasswordPolicy
	if p == nil {
		return nil, nil
	}
	n := tree.NewMap()
	setInt32(n, "MinimumPasswordLength", p.MinimumPasswordLength)
	n.Set("RequireSymbols", tree.Bool(p.RequireSymbols))
	n.Set("RequireNumbers", tree.Bool(p.RequireNumbers))
	n.Set("RequireUppercaseCharacters", tree.Bool(p.RequireUppercaseCharacters))
	n.Set("RequireLowercaseCharacters", tree.Bool(p.RequireLowercaseCharacters))
	n.Set("AllowUsersToChangePassword", tree.Bool(p.AllowUsersToChangePassword))
	n.Set("ExpirePasswords", tree.Bool(p.ExpirePasswords))
	setInt32(n, "MaxPasswordAge", p.MaxPasswordAge)
	setInt32(n, "PasswordReusePrevention", p.PasswordReusePrevention)
	setBool(n, "HardExpiry", p.HardExpiry)
	return n, nil
}

func fetchRoles(ctx context.Context, client iamAPIClient, log zerolog.Logger) (*tree.Node, error) {
	roles := tree.NewSeq()
	p := iamsvc.NewListRolesPaginator(client, &iamsvc.ListRolesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list IAM roles: %w", err)
		}
		for _, r := range page.Roles {
			name := aws.ToString(r.RoleName)
			n := tree.NewMap()
			n.Set("RoleName", tree.String(name))
			setString(n, "RoleId", r.RoleId)
			setString(n, "Arn", r.Arn)
			setString(n, "Path", r.Path)
			setTime(n, "CreateDate", r.CreateDate)
			setString(n, "Description", r.Description)

			attached, err := attachedRolePolicies(ctx, client, name)
			if err != nil {
				log.Debug().Err(err).Str("role", name).Msg("attached role policies unavailable")
			} else {
				n.Set("AttachedPolicies", attached)
			}
			inline, err := client.ListRolePolicies(ctx, &iamsvc.ListRolePoliciesInput{RoleName: aws.String(name)})
			if err != nil {
				log.Debug().Err(err).Str("role", name).Msg("inline role policies unavailable")
			} else {
				n.Set("InlinePolicies", stringSeq(inline.PolicyNames))
			}
			profiles, err := client.ListInstanceProfilesForRole(ctx, &iamsvc.ListInstanceProfilesForRoleInput{RoleName: aws.String(name)})
			if err != nil {
				log.Debug().Err(err).Str("role", name).Msg("instance profiles unavailable")
			} else {
				seq := tree.NewSeq()
				for _, ip := range profiles.InstanceProfiles {
					m := tree.NewMap()
					setString(m, "InstanceProfileName", ip.InstanceProfileName)
					setString(m, "Arn", ip.Arn)
					seq.Append(m)
				}
				n.Set("InstanceProfiles", seq)
			}
			roles.Append(n)
		}
	}
	return roles, nil
}

func attachedRolePolicies(ctx context.Context, client iamAPIClient, role string) (*tree.Node, error) {
	seq := tree.NewSeq()
	p := iamsvc.NewListAttachedRolePoliciesPaginator(client, &iamsvc.ListAttachedRolePoliciesInput{RoleName: aws.String(role)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, ap := range page.AttachedPolicies {
			seq.Append(attachedPolicyNode(ap))
		}
	}
	return seq, nil
}

func attachedPolicyNode(ap iamtypes.AttachedPolicy) *tree.Node {
	m := tree.NewMap()
	setString(m, "PolicyName", ap.PolicyName)
	setString(m, "PolicyArn", ap.PolicyArn)
	return m
}

// fetchUsers lists users with their console login, MFA devices, access keys
// and policies. LoginProfile is false when GetLoginProfile fails, which is
// how IAM reports a user without a console password.
func fetchUsers(ctx context.Context, client iamAPIClient, log zerolog.Logger) (*tree.Node, error) {
	users := tree.NewSeq()
	p := iamsvc.NewListUsersPaginator(client, &iamsvc.ListUsersInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list IAM users: %w", err)
		}
		for _, u := range page.Users {
			name := aws.ToString(u.UserName)
			n := tree.NewMap()
			n.Set("UserName", tree.String(name))
			setString(n, "UserId", u.UserId)
			setString(n, "Arn", u.Arn)
			setTime(n, "CreateDate", u.CreateDate)
			setTime(n, "PasswordLastUsed", u.PasswordLastUsed)

			_, err := client.GetLoginProfile(ctx, &iamsvc.GetLoginProfileInput{UserName: aws.String(name)})
			n.Set("LoginProfile", tree.Bool(err == nil))

			mfa, err := client.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{UserName: aws.String(name)})
			if err != nil {
				log.Debug().Err(err).Str("user", name).Msg("MFA devices unavailable")
			} else {
				serials := make([]string, 0, len(mfa.MFADevices))
				for _, d := range mfa.MFADevices {
					serials = append(serials, aws.ToString(d.SerialNumber))
				}
				n.Set("MFADevices", stringSeq(serials))
			}

			keys, err := client.ListAccessKeys(ctx, &iamsvc.ListAccessKeysInput{UserName: aws.String(name)})
			if err != nil {
				log.Debug().Err(err).Str("user", name).Msg("access keys unavailable")
			} else {
				seq := tree.NewSeq()
				for _, k := range keys.AccessKeyMetadata {
					m := tree.NewMap()
					setString(m, "AccessKeyId", k.AccessKeyId)
					m.Set("Status", tree.String(string(k.Status)))
					setTime(m, "CreateDate", k.CreateDate)
					seq.Append(m)
				}
				n.Set("AccessKeys", seq)
			}

			inline, err := client.ListUserPolicies(ctx, &iamsvc.ListUserPoliciesInput{UserName: aws.String(name)})
			if err != nil {
				log.Debug().Err(err).Str("user", name).Msg("inline user policies unavailable")
			} else {
				n.Set("InlinePolicies", stringSeq(inline.PolicyNames))
			}

			attached := tree.NewSeq()
			ap := iamsvc.NewListAttachedUserPoliciesPaginator(client, &iamsvc.ListAttachedUserPoliciesInput{UserName: aws.String(name)})
			for ap.HasMorePages() {
				page, err := ap.NextPage(ctx)
				if err != nil {
					log.Debug().Err(err).Str("user", name).Msg("attached user policies unavailable")
					attached = nil
					break
				}
				for _, pol := range page.AttachedPolicies {
					attached.Append(attachedPolicyNode(pol))
				}
			}
			if attached != nil {
				n.Set("AttachedPolicies", attached)
			}
			users.Append(n)
		}
	}
	return users, nil
}

// fetchPolicies lists customer managed policies. Document is the default
// version's policy document with Statement, Action, NotAction, Resource and
// NotResource normalized to sequences.
func fetchPolicies(ctx context.Context, client iamAPIClient, log zerolog.Logger) (*tree.Node, error) {
	policies := tree.NewSeq()
	p := iamsvc.NewListPoliciesPaginator(client, &iamsvc.ListPoliciesInput{Scope: iamtypes.PolicyScopeTypeLocal})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list IAM policies: %w", err)
		}
		for _, pol := range page.Policies {
			n := tree.NewMap()
			setString(n, "PolicyName", pol.PolicyName)
			setString(n, "Arn", pol.Arn)
			setString(n, "DefaultVersionId", pol.DefaultVersionId)
			setInt32(n, "AttachmentCount", pol.AttachmentCount)

			doc, err := policyDocument(ctx, client, pol.Arn, pol.DefaultVersionId)
			if err != nil {
				log.Debug().Err(err).Str("policy", aws.ToString(pol.Arn)).Msg("policy document unavailable")
			} else {
				n.Set("Document", doc)
			}
			policies.Append(n)
		}
	}
	return policies, nil
}

func policyDocument(ctx context.Context, client iamAPIClient, arn, version *string) (*tree.Node, error) {
	res, err := client.GetPolicyVersion(ctx, &iamsvc.GetPolicyVersionInput{PolicyArn: arn, VersionId: version})
	if err != nil {
		return nil, err
	}
	if res.PolicyVersion == nil || res.PolicyVersion.Document == nil {
		return nil, errors.New("empty policy version")
	}
	raw, err := url.QueryUnescape(aws.ToString(res.PolicyVersion.Document))
	if err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}
	doc, err := tree.ParseJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	normalizePolicyDocument(doc)
	return doc, nil
}

// normalizePolicyDocument rewrites the single-value forms IAM accepts
// ("Statement": {...}, "Action": "s3:*") into one-element sequences.
func normalizePolicyDocument(doc *tree.Node) {
	if doc.Kind() != tree.KindMap {
		return
	}
	stmts, ok := doc.Child("Statement")
	if !ok {
		return
	}
	stmts = asSeq(stmts)
	doc.Set("Statement", stmts)
	for _, s := range stmts.Items() {
		if s.Kind() != tree.KindMap {
			continue
		}
		for _, key := range []string{"Action", "NotAction", "Resource", "NotResource"} {
			if v, ok := s.Child(key); ok {
				s.Set(key, asSeq(v))
			}
		}
	}
}

func asSeq(n *tree.Node) *tree.Node {
	if n.Kind() == tree.KindSeq {
		return n
	}
	return tree.NewSeq().Append(n)
}
