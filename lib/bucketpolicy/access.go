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
	"context"
	"log/slog"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/slipstream"
	"github.com/gravitational/slipstream/lib/defaults"
	"github.com/gravitational/slipstream/lib/utils/retryutils"
)

// AccessRequest describes a grant or revoke of read access on an origin
// bucket.
type AccessRequest struct {
	// Bucket is the origin bucket whose policy is updated.
	Bucket string
	// Kind selects the managed statement the principal is added to or
	// removed from.
	Kind GrantKind
	// Principal is the distribution ARN for GrantKindBucket, or the OAI
	// user ARN for GrantKindDistribution.
	Principal string
	// Clock paces retries after a lost write race. Defaults to the real
	// clock.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks if the required fields are present.
func (req *AccessRequest) CheckAndSetDefaults() error {
	if req.Bucket == "" {
		return trace.BadParameter("bucket is required")
	}
	if err := req.Kind.Check(); err != nil {
		return trace.Wrap(err)
	}
	if req.Principal == "" {
		return trace.BadParameter("principal is required")
	}
	if req.Clock == nil {
		req.Clock = clockwork.NewRealClock()
	}
	return nil
}

// GrantAccess adds the principal to the bucket policy statement selected
// by the grant kind, creating the statement on first use. The operation is
// idempotent and leaves unrelated statements untouched.
//
// S3 has no conditional policy write, so the update is confirmed by
// reading the policy back. A confirmation miss means a concurrent writer
// replaced the policy in between. The update is then re-applied on the
// fresh document, a bounded number of times.
func GrantAccess(ctx context.Context, clt PolicyClient, req AccessRequest) error {
	if err := req.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	apply := func(doc *PolicyDocument) bool {
		return Grant(doc, req.Bucket, req.Kind, req.Principal)
	}
	return trace.Wrap(applyAccessUpdate(ctx, clt, req, apply, true))
}

// RevokeAccess removes the principal from the bucket policy statement
// selected by the grant kind. Revoking an absent principal is a no-op, and
// removing the last principal removes the statement. Unrelated statements
// are left untouched.
//
// Confirmation and retries follow the same scheme as GrantAccess.
func RevokeAccess(ctx context.Context, clt PolicyClient, req AccessRequest) error {
	if err := req.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	apply := func(doc *PolicyDocument) bool {
		return Revoke(doc, req.Kind, req.Principal)
	}
	return trace.Wrap(applyAccessUpdate(ctx, clt, req, apply, false))
}

// applyAccessUpdate runs the read-modify-write cycle until the read-back
// confirms the principal is present (wantPresent true) or absent
// (wantPresent false).
func applyAccessUpdate(ctx context.Context, clt PolicyClient, req AccessRequest, apply func(*PolicyDocument) bool, wantPresent bool) error {
	retry, err := retryutils.NewLinear(retryutils.LinearConfig{
		First:  defaults.PolicyWriteRetryBase,
		Step:   defaults.PolicyWriteRetryBase,
		Max:    defaults.PolicyWriteRetryMax,
		Jitter: retryutils.NewHalfJitter(),
		Clock:  req.Clock,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	log := slog.With(slipstream.ComponentKey, slipstream.ComponentBucketPolicy)

	for attempt := 1; ; attempt++ {
		doc, err := fetchPolicyDocument(ctx, clt, req.Bucket)
		if err != nil {
			return trace.Wrap(err)
		}
		if !apply(doc) {
			// Already in the desired state, skip the write.
			return nil
		}
		if err := writePolicyDocument(ctx, clt, req.Bucket, doc); err != nil {
			return trace.Wrap(err)
		}

		confirmed, err := fetchPolicyDocument(ctx, clt, req.Bucket)
		if err != nil {
			return trace.Wrap(err)
		}
		if HasPrincipal(confirmed, req.Kind, req.Principal) == wantPresent {
			return nil
		}

		if attempt >= defaults.PolicyWriteRetries {
			return trace.CompareFailed("bucket %v policy update lost to concurrent writers %d times", req.Bucket, attempt)
		}
		log.WarnContext(ctx, "Bucket policy update lost to a concurrent writer, retrying",
			"bucket", req.Bucket,
			"attempt", attempt,
		)
		retry.Inc()
		select {
		case <-retry.After():
		case <-ctx.Done():
			return trace.Wrap(ctx.Err())
		}
	}
}
