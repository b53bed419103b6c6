/*
 * Slipstream
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package bucketpolicy manages the S3 bucket policy statements that grant
// CloudFront distributions read access to origin buckets.
//
// Two managed statements can appear in an origin bucket policy. The service
// principal statement grants the CloudFront service access scoped to
// specific distribution ARNs, and the origin access identity statement
// grants access to specific OAI users. Everything else in the policy
// belongs to the bucket owner and is preserved untouched.
package bucketpolicy

import (
	"encoding/json"
	"fmt"

	"github.com/gravitational/trace"
)

const (
	// PolicyVersion is the default version of the AWS policy language.
	PolicyVersion = "2012-10-17"

	// EffectAllow is the Allow effect in a policy statement.
	EffectAllow = "Allow"
	// EffectDeny is the Deny effect in a policy statement.
	EffectDeny = "Deny"

	// wildcard matches all principals, actions or resources.
	wildcard = "*"
)

const (
	// SidDistributionAccess identifies the statement granting the
	// CloudFront service principal access scoped by distribution ARN.
	SidDistributionAccess = "AllowCloudFrontServicePrincipal"
	// SidOriginAccessIdentities identifies the statement granting access
	// to CloudFront origin access identities.
	SidOriginAccessIdentities = "AllowOriginAccessIdentities"
	// SidPublicWebsiteRead identifies the statement granting anonymous
	// read access on website-enabled origin buckets.
	SidPublicWebsiteRead = "PublicReadGetObject"
)

const (
	// cloudFrontServicePrincipal is the principal CloudFront uses when
	// fetching objects on behalf of a distribution with origin access
	// control.
	cloudFrontServicePrincipal = "cloudfront.amazonaws.com"
	// sourceArnConditionKey scopes a service principal statement to
	// specific distributions.
	sourceArnConditionKey = "AWS:SourceArn"
	// stringEquals is the exact match condition operator.
	stringEquals = "StringEquals"
)

// PolicyDocument represents a parsed S3 bucket policy document.
type PolicyDocument struct {
	// Version is the policy language version.
	Version string `json:"Version"`
	// ID is an optional policy identifier.
	ID string `json:"Id,omitempty"`
	// Statements is a list of the policy statements.
	Statements []*Statement `json:"Statement"`
}

// Statement is a single AWS policy statement.
type Statement struct {
	// StatementID is an optional statement identifier.
	StatementID string `json:"Sid,omitempty"`
	// Effect is the statement effect such as Allow or Deny.
	Effect string `json:"Effect"`
	// Principals is the map of principals the statement applies to.
	Principals StringOrMap `json:"Principal,omitempty"`
	// Actions is a list of actions.
	Actions SliceOrString `json:"Action"`
	// Resources is a list of resources.
	Resources SliceOrString `json:"Resource,omitempty"`
	// Conditions restrict when the statement applies.
	Conditions Conditions `json:"Condition,omitempty"`
}

// Conditions is a map of condition operator to condition key to values.
type Conditions map[string]map[string]SliceOrString

// NewPolicyDocument returns a new policy document with the given
// statements.
func NewPolicyDocument(statements ...*Statement) *PolicyDocument {
	return &PolicyDocument{
		Version:    PolicyVersion,
		Statements: statements,
	}
}

// ParsePolicyDocument returns a parsed policy document.
func ParsePolicyDocument(document string) (*PolicyDocument, error) {
	var parsed PolicyDocument
	if err := json.Unmarshal([]byte(document), &parsed); err != nil {
		return nil, trace.Wrap(err)
	}
	return &parsed, nil
}

// Marshal returns the policy document as a JSON string in canonical form.
// Marshaling the same logical document always yields the same bytes.
func (p *PolicyDocument) Marshal() (string, error) {
	b, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return "", trace.Wrap(err)
	}
	return string(b), nil
}

// FindStatementByID returns the first statement with the given statement
// ID, or nil if the document has none.
func (p *PolicyDocument) FindStatementByID(sid string) *Statement {
	for _, statement := range p.Statements {
		if statement.StatementID == sid {
			return statement
		}
	}
	return nil
}

// DeleteStatementByID removes every statement with the given statement ID.
// Returns true if the document was modified.
func (p *PolicyDocument) DeleteStatementByID(sid string) bool {
	kept := p.Statements[:0]
	for _, statement := range p.Statements {
		if statement.StatementID != sid {
			kept = append(kept, statement)
		}
	}
	deleted := len(kept) != len(p.Statements)
	p.Statements = kept
	return deleted
}

// IsEmpty returns true if the document has no statements left. S3 rejects
// policies with an empty statement list, so callers delete the bucket
// policy instead of writing an empty one.
func (p *PolicyDocument) IsEmpty() bool {
	return len(p.Statements) == 0
}

// StatementForDistributionAccess returns the statement granting the
// CloudFront service principal read access on the bucket objects, scoped
// to the given distribution ARNs. The ARN list may be empty on a
// freshly created origin that no distribution uses yet.
func StatementForDistributionAccess(bucket string, distributionARNs ...string) *Statement {
	sourceARNs := SliceOrString{}
	sourceARNs = append(sourceARNs, distributionARNs...)
	return &Statement{
		StatementID: SidDistributionAccess,
		Effect:      EffectAllow,
		Principals:  StringOrMap{"Service": SliceOrString{cloudFrontServicePrincipal}},
		Actions:     SliceOrString{"s3:GetObject"},
		Resources:   SliceOrString{bucketObjectsARN(bucket)},
		Conditions: Conditions{
			stringEquals: {sourceArnConditionKey: sourceARNs},
		},
	}
}

// StatementForOriginAccessIdentities returns the statement granting the
// given CloudFront origin access identity users read access on the bucket
// objects.
func StatementForOriginAccessIdentities(bucket string, oaiUserARNs ...string) *Statement {
	principals := SliceOrString{}
	principals = append(principals, oaiUserARNs...)
	return &Statement{
		StatementID: SidOriginAccessIdentities,
		Effect:      EffectAllow,
		Principals:  StringOrMap{"AWS": principals},
		Actions:     SliceOrString{"s3:GetObject"},
		Resources:   SliceOrString{bucketObjectsARN(bucket)},
	}
}

// StatementForPublicWebsiteRead returns the statement granting anonymous
// read access on the bucket objects, used by website-enabled origins.
func StatementForPublicWebsiteRead(bucket string) *Statement {
	return &Statement{
		StatementID: SidPublicWebsiteRead,
		Effect:      EffectAllow,
		Principals:  StringOrMap{wildcard: nil},
		Actions:     SliceOrString{"s3:GetObject"},
		Resources:   SliceOrString{bucketObjectsARN(bucket)},
	}
}

// OriginAccessIdentityUserARN returns the IAM user ARN CloudFront presents
// for the given origin access identity.
func OriginAccessIdentityUserARN(oaiID string) string {
	return fmt.Sprintf("arn:aws:iam::cloudfront:user/CloudFront Origin Access Identity %s", oaiID)
}

func bucketObjectsARN(bucket string) string {
	return fmt.Sprintf("arn:aws:s3:::%s/*", bucket)
}

// SliceOrString defines a type that can be either a single string or a
// slice of strings in JSON.
type SliceOrString []string

// UnmarshalJSON implements json.Unmarshaller.
func (s *SliceOrString) UnmarshalJSON(bytes []byte) error {
	// Check if input is a slice of strings.
	var slice []string
	sliceErr := json.Unmarshal(bytes, &slice)
	if sliceErr == nil {
		*s = slice
		return nil
	}

	// Check if input is a single string.
	var str string
	strErr := json.Unmarshal(bytes, &str)
	if strErr == nil {
		*s = []string{str}
		return nil
	}

	// Failed both formats.
	return trace.NewAggregate(sliceErr, strErr)
}

// MarshalJSON implements json.Marshaler. A single value marshals as a
// plain string, which is the form AWS itself writes back.
func (s SliceOrString) MarshalJSON() ([]byte, error) {
	switch len(s) {
	case 0:
		return json.Marshal([]string{})
	case 1:
		return json.Marshal(s[0])
	default:
		return json.Marshal([]string(s))
	}
}

// StringOrMap is a type that can be either a map of string keys to string
// slices, or the single string "*", in JSON. It represents the Principal
// element of a policy statement.
type StringOrMap map[string]SliceOrString

// UnmarshalJSON implements json.Unmarshaller.
func (m *StringOrMap) UnmarshalJSON(bytes []byte) error {
	// Check if input is a map.
	var mapValue map[string]SliceOrString
	mapErr := json.Unmarshal(bytes, &mapValue)
	if mapErr == nil {
		*m = mapValue
		return nil
	}

	// Check if input is a single string such as "*".
	var str string
	strErr := json.Unmarshal(bytes, &str)
	if strErr == nil {
		*m = StringOrMap{str: nil}
		return nil
	}

	// Failed both formats.
	return trace.NewAggregate(mapErr, strErr)
}

// MarshalJSON implements json.Marshaler. The wildcard principal with no
// values marshals back to the string "*".
func (m StringOrMap) MarshalJSON() ([]byte, error) {
	if len(m) == 1 {
		if values, found := m[wildcard]; found && len(values) == 0 {
			return json.Marshal(wildcard)
		}
	}
	return json.Marshal(map[string]SliceOrString(m))
}
