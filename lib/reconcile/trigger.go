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

package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/gravitational/trace"

	"github.com/gravitational/slipstream"
	awslib "github.com/gravitational/slipstream/lib/cloud/aws"
)

// monitorAction is the action dispatched to the deployment monitor state
// machine.
const monitorAction = "monitor_deployment"

// monitorInput is the execution input of the deployment monitor state
// machine.
type monitorInput struct {
	DistributionID string `json:"distributionId"`
	CDNID          string `json:"cloudfrontId"`
	Action         string `json:"action"`
}

// SFNTriggerConfig holds the dependencies of the Step Functions trigger.
type SFNTriggerConfig struct {
	// Client is the Step Functions client.
	Client SFNClient
	// StateMachineARN is the deployment monitor state machine.
	StateMachineARN string
}

// CheckAndSetDefaults checks if the required fields are present.
func (cfg *SFNTriggerConfig) CheckAndSetDefaults() error {
	if cfg.Client == nil {
		return trace.BadParameter("step functions client is required")
	}
	if cfg.StateMachineARN == "" {
		return trace.BadParameter("state machine arn is required")
	}
	return nil
}

// SFNTrigger starts the deployment monitor as a Step Functions execution,
// handing the bounded wait off to the external state machine.
type SFNTrigger struct {
	cfg SFNTriggerConfig
	log *slog.Logger
}

// NewSFNTrigger returns a trigger starting executions of the given state
// machine.
func NewSFNTrigger(cfg SFNTriggerConfig) (*SFNTrigger, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &SFNTrigger{
		cfg: cfg,
		log: slog.With(slipstream.ComponentKey, slipstream.ComponentReconciler),
	}, nil
}

// StartDeploymentMonitor starts a state machine execution watching the
// distribution. The execution name is left to Step Functions, repeated
// triggers for the same distribution each get their own execution.
func (t *SFNTrigger) StartDeploymentMonitor(ctx context.Context, distributionID, cdnID string) error {
	input, err := json.Marshal(monitorInput{
		DistributionID: distributionID,
		CDNID:          cdnID,
		Action:         monitorAction,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	out, err := t.cfg.Client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(t.cfg.StateMachineARN),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return trace.Wrap(awslib.ConvertError(err))
	}
	t.log.InfoContext(ctx, "Started deployment monitor execution.",
		"distribution", distributionID,
		"cloudfront_id", cdnID,
		"execution", aws.ToString(out.ExecutionArn),
	)
	return nil
}

// GoroutineTrigger runs the deployment monitor in-process. Monitors are
// detached from the request context that started them, their lifetime is
// bounded by the context the trigger was built with.
type GoroutineTrigger struct {
	service  *Service
	closeCtx context.Context
	log      *slog.Logger
	wg       sync.WaitGroup
}

// NewGoroutineTrigger returns a trigger running monitors on the given
// reconciler until ctx is canceled.
func NewGoroutineTrigger(ctx context.Context, service *Service) *GoroutineTrigger {
	return &GoroutineTrigger{
		service:  service,
		closeCtx: ctx,
		log:      slog.With(slipstream.ComponentKey, slipstream.ComponentReconciler),
	}
}

// StartDeploymentMonitor begins watching the distribution in a new
// goroutine.
func (t *GoroutineTrigger) StartDeploymentMonitor(_ context.Context, distributionID, cdnID string) error {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		status, err := t.service.WaitDeployed(t.closeCtx, distributionID)
		if err != nil {
			if t.closeCtx.Err() == nil {
				t.log.WarnContext(t.closeCtx, "Deployment monitor gave up, the periodic checks take over.",
					"distribution", distributionID,
					"cloudfront_id", cdnID,
					"error", err,
				)
			}
			return
		}
		t.log.InfoContext(t.closeCtx, "Deployment monitor finished.",
			"distribution", distributionID,
			"status", status,
		)
	}()
	return nil
}

// Wait blocks until every running monitor has returned.
func (t *GoroutineTrigger) Wait() {
	t.wg.Wait()
}
