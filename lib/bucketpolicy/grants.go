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

package bucketpolicy

import (
	"slices"

	"github.com/gravitational/trace"
)

// GrantKind selects which managed policy statement a grant or revoke
// operates on.
type GrantKind string

const (
	// GrantKindBucket operates on the service principal statement shared
	// by every distribution using the bucket. Principals are distribution
	// ARNs recorded in the statement's source ARN condition.
	GrantKindBucket GrantKind = "bucket"
	// GrantKindDistribution operates on the origin access identity
	// statement. Principals are OAI user ARNs recorded in the statement's
	// AWS principal list.
	GrantKindDistribution GrantKind = "distribution"
)

// Check validates the grant kind.
func (k GrantKind) Check() error {
	switch k {
	case GrantKindBucket, GrantKindDistribution:
		return nil
	}
	return trace.BadParameter("unsupported grant kind %q", k)
}

// Grant adds the principal to the managed statement for the given grant
// kind, creating the statement if the document has none. Principals form a
// set, so granting an already present principal changes nothing. All other
// statements are left untouched.
//
// Returns true if the document was modified.
func Grant(doc *PolicyDocument, bucket string, kind GrantKind, principal string) bool {
	switch kind {
	case GrantKindBucket:
		statement := doc.FindStatementByID(SidDistributionAccess)
		if statement == nil {
			doc.Statements = append(doc.Statements, StatementForDistributionAccess(bucket, principal))
			return true
		}
		arns := statement.sourceARNs()
		if slices.Contains(arns, principal) {
			return false
		}
		statement.setSourceARNs(canonicalize(append(arns, principal)))
		return true

	case GrantKindDistribution:
		statement := doc.FindStatementByID(SidOriginAccessIdentities)
		if statement == nil {
			doc.Statements = append(doc.Statements, StatementForOriginAccessIdentities(bucket, principal))
			return true
		}
		principals := statement.awsPrincipals()
		if slices.Contains(principals, principal) {
			return false
		}
		statement.setAWSPrincipals(canonicalize(append(principals, principal)))
		return true
	}
	return false
}

// Revoke removes the principal from the managed statement for the given
// grant kind. Revoking a principal that is not present changes nothing.
// Removing the last principal removes the whole statement. All other
// statements are left untouched.
//
// Returns true if the document was modified.
func Revoke(doc *PolicyDocument, kind GrantKind, principal string) bool {
	switch kind {
	case GrantKindBucket:
		statement := doc.FindStatementByID(SidDistributionAccess)
		if statement == nil {
			return false
		}
		arns := statement.sourceARNs()
		if !slices.Contains(arns, principal) {
			return false
		}
		remaining := canonicalize(remove(arns, principal))
		if len(remaining) == 0 {
			doc.DeleteStatementByID(SidDistributionAccess)
		} else {
			statement.setSourceARNs(remaining)
		}
		return true

	case GrantKindDistribution:
		statement := doc.FindStatementByID(SidOriginAccessIdentities)
		if statement == nil {
			return false
		}
		principals := statement.awsPrincipals()
		if !slices.Contains(principals, principal) {
			return false
		}
		remaining := canonicalize(remove(principals, principal))
		if len(remaining) == 0 {
			doc.DeleteStatementByID(SidOriginAccessIdentities)
		} else {
			statement.setAWSPrincipals(remaining)
		}
		return true
	}
	return false
}

// HasPrincipal returns true if the managed statement for the given grant
// kind lists the principal.
func HasPrincipal(doc *PolicyDocument, kind GrantKind, principal string) bool {
	switch kind {
	case GrantKindBucket:
		statement := doc.FindStatementByID(SidDistributionAccess)
		return statement != nil && slices.Contains(statement.sourceARNs(), principal)
	case GrantKindDistribution:
		statement := doc.FindStatementByID(SidOriginAccessIdentities)
		return statement != nil && slices.Contains(statement.awsPrincipals(), principal)
	}
	return false
}

func (s *Statement) sourceARNs() SliceOrString {
	if s.Conditions == nil {
		return nil
	}
	return s.Conditions[stringEquals][sourceArnConditionKey]
}

func (s *Statement) setSourceARNs(arns SliceOrString) {
	if s.Conditions == nil {
		s.Conditions = Conditions{}
	}
	if s.Conditions[stringEquals] == nil {
		s.Conditions[stringEquals] = map[string]SliceOrString{}
	}
	s.Conditions[stringEquals][sourceArnConditionKey] = arns
}

func (s *Statement) awsPrincipals() SliceOrString {
	if s.Principals == nil {
		return nil
	}
	return s.Principals["AWS"]
}

func (s *Statement) setAWSPrincipals(principals SliceOrString) {
	if s.Principals == nil {
		s.Principals = StringOrMap{}
	}
	s.Principals["AWS"] = principals
}

// canonicalize sorts and deduplicates the values so that repeated grants
// produce byte-for-byte identical policies.
func canonicalize(values SliceOrString) SliceOrString {
	slices.Sort(values)
	return slices.Compact(values)
}

func remove(values SliceOrString, value string) SliceOrString {
	kept := make(SliceOrString, 0, len(values))
	for _, v := range values {
		if v != value {
			kept = append(kept, v)
		}
	}
	return kept
}
