package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"context"
	"fmt"
	"strconv"
	"strings"
)

const defaultSubscriptionName = "free-subscription"

// SubscriptionRequest selects the free plan to subscribe to.
// PlanID wins over Provider/Region when both are set.
type SubscriptionRequest struct {
	PlanID   int
	Provider string
	Region   string
	Name     string
}

func (r SubscriptionRequest) matchesPlan(p cloudapi.Plan) bool {
	if r.PlanID > 0 {
		return p.ID == r.PlanID
	}
	if r.Provider != "" && !strings.EqualFold(p.Provider, r.Provider) {
		return false
	}
	if r.Region != "" && !strings.EqualFold(p.Region, r.Region) {
		return false
	}
	return true
}

// newWaitForActiveSubscriptionJob polls a subscription until it is active.
func newWaitForActiveSubscriptionJob(opts Options, id int) *Job[*cloudapi.Subscription] {
	return newJob(NameWaitForActiveSubscription, opts, func(ctx context.Context, c *core) (*cloudapi.Subscription, error) {
		op := "wait for subscription " + strconv.Itoa(id)
		return poll(ctx, c, op, c.opts.Budgets.Subscription, func(ctx context.Context) (*cloudapi.Subscription, bool, error) {
			sub, err := c.opts.API.GetFixedSubscription(ctx, c.opts.Credentials, id)
			if err != nil {
				return nil, false, err
			}
			switch sub.Status {
			case cloudapi.SubscriptionActive:
				return sub, true, nil
			case cloudapi.SubscriptionError, cloudapi.SubscriptionDeleting:
				return nil, false, apperrors.Unexpected(op, fmt.Sprintf("subscription %d is %s", id, sub.Status))
			default:
				return nil, false, nil
			}
		})
	})
}

// newEnsureFreeSubscriptionJob returns an active free subscription, reusing
// one the account already has before creating a new one.
func newEnsureFreeSubscriptionJob(opts Options, req SubscriptionRequest) *Job[*cloudapi.Subscription] {
	return newJob(NameEnsureFreeSubscription, opts, func(ctx context.Context, c *core) (*cloudapi.Subscription, error) {
		subs, err := c.opts.API.ListFixedSubscriptions(ctx, c.opts.Credentials)
		if err != nil {
			return nil, err
		}

		if existing := pickFreeSubscription(subs); existing != nil {
			c.logger.Info("Reusing free subscription", "subscriptionId", existing.ID, "status", existing.Status)
			if existing.Status == cloudapi.SubscriptionActive {
				return existing, nil
			}
			return runChild(ctx, c, func(o Options) *Job[*cloudapi.Subscription] {
				return newWaitForActiveSubscriptionJob(o, existing.ID)
			})
		}

		plans, err := c.opts.API.ListFixedPlans(ctx, c.opts.Credentials)
		if err != nil {
			return nil, err
		}
		plan, err := pickFreePlan(plans, req)
		if err != nil {
			return nil, err
		}

		if err := c.checkSignal(ctx); err != nil {
			return nil, err
		}
		name := req.Name
		if name == "" {
			name = defaultSubscriptionName
		}
		task, err := c.opts.API.CreateFreeSubscription(ctx, c.opts.Credentials, plan.ID, name)
		if err != nil {
			return nil, err
		}
		c.logger.Info("Free subscription requested", "planId", plan.ID, "provider", plan.Provider, "region", plan.Region)

		id, err := awaitResource(ctx, c, task, "subscription")
		if err != nil {
			return nil, err
		}
		return runChild(ctx, c, func(o Options) *Job[*cloudapi.Subscription] {
			return newWaitForActiveSubscriptionJob(o, id)
		})
	})
}

// pickFreeSubscription prefers an active free subscription over a pending one.
func pickFreeSubscription(subs []cloudapi.Subscription) *cloudapi.Subscription {
	var pending *cloudapi.Subscription
	for i := range subs {
		s := subs[i]
		if !s.Free() || !s.Usable() {
			continue
		}
		if s.Status == cloudapi.SubscriptionActive {
			return &s
		}
		if pending == nil {
			pending = &s
		}
	}
	return pending
}

func pickFreePlan(plans []cloudapi.Plan, req SubscriptionRequest) (*cloudapi.Plan, error) {
	for i := range plans {
		p := plans[i]
		if !req.matchesPlan(p) {
			continue
		}
		if !p.Free() {
			if req.PlanID > 0 {
				return nil, apperrors.Validation("planId", fmt.Sprintf("plan %d is not free", p.ID))
			}
			continue
		}
		return &p, nil
	}

	switch {
	case req.PlanID > 0:
		return nil, apperrors.NotFound("plan", strconv.Itoa(req.PlanID))
	case req.Provider != "" || req.Region != "":
		return nil, apperrors.NotFound("free plan", strings.Trim(req.Provider+"/"+req.Region, "/"))
	default:
		return nil, apperrors.NotFound("free plan", "for this account")
	}
}
