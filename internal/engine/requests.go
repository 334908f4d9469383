package engine

import (
	"context"
	"time"

	"textile-sync/internal/gateway"
	"textile-sync/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateBulkRequest is a Shape A create. The deadline is fixed at creation
// and immutable afterwards.
func (e *Engine) CreateBulkRequest(ctx context.Context, r models.BulkRequest) (models.BulkRequest, error) {
	actor, serr := e.requireActor("create_bulk_request", models.KindBulkRequest)
	if serr != nil {
		return models.BulkRequest{}, serr
	}
	if r.Deadline == "" {
		return models.BulkRequest{}, rejectErr("create_bulk_request", models.KindBulkRequest, r.ID,
			"deadline is required")
	}
	if r.Quantity < 0 || r.TargetPrice < 0 {
		return models.BulkRequest{}, rejectErr("create_bulk_request", models.KindBulkRequest, r.ID,
			"quantity and target price must not be negative")
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.BuyerID == "" {
		r.BuyerID = actor.ID
	}
	if r.Status == "" {
		r.Status = models.RequestStatusOpen
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	rec, err := e.fireAndConfirm(ctx, "create_bulk_request", models.KindBulkRequest, r.ID,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Insert(ctx, models.KindBulkRequest, gateway.Row{
				"id":           r.ID,
				"buyer_id":     r.BuyerID,
				"fabric_type":  r.FabricType,
				"quantity":     r.Quantity,
				"target_price": r.TargetPrice,
				"deadline":     r.Deadline,
				"status":       r.Status,
				"created_at":   r.CreatedAt,
			})
		})
	if err != nil {
		return models.BulkRequest{}, err
	}
	return rec.(models.BulkRequest), nil
}

// UpdateBulkRequest is a Shape A edit that refuses deadline changes.
func (e *Engine) UpdateBulkRequest(ctx context.Context, id string, patch gateway.Row) (models.BulkRequest, error) {
	if _, serr := e.requireActor("update_bulk_request", models.KindBulkRequest); serr != nil {
		return models.BulkRequest{}, serr
	}
	if _, present := patch["deadline"]; present {
		return models.BulkRequest{}, rejectErr("update_bulk_request", models.KindBulkRequest, id,
			"deadline is immutable after creation")
	}

	rec, err := e.fireAndConfirm(ctx, "update_bulk_request", models.KindBulkRequest, id,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Update(ctx, models.KindBulkRequest, id, patch)
		})
	if err != nil {
		return models.BulkRequest{}, err
	}
	return rec.(models.BulkRequest), nil
}

// CreateProposal is a Shape A create answering a bulk request. Total price
// defaults to price-per-kg times the request quantity.
func (e *Engine) CreateProposal(ctx context.Context, p models.Proposal) (models.Proposal, error) {
	actor, serr := e.requireActor("create_proposal", models.KindProposal)
	if serr != nil {
		return models.Proposal{}, serr
	}
	if p.RequestID == "" {
		return models.Proposal{}, rejectErr("create_proposal", models.KindProposal, p.ID,
			"request id is required")
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.FactoryID == "" {
		p.FactoryID = actor.ID
	}
	if p.Status == "" {
		p.Status = models.ProposalStatusPending
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if p.TotalPrice == 0 {
		if rec, ok := e.cache.Get(models.KindBulkRequest, p.RequestID); ok {
			req := rec.(models.BulkRequest)
			p.TotalPrice = p.PricePerKg * req.Quantity
			if p.BuyerID == "" {
				p.BuyerID = req.BuyerID
			}
		}
	}

	rec, err := e.fireAndConfirm(ctx, "create_proposal", models.KindProposal, p.ID,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Insert(ctx, models.KindProposal, gateway.Row{
				"id":           p.ID,
				"request_id":   p.RequestID,
				"factory_id":   p.FactoryID,
				"buyer_id":     p.BuyerID,
				"price_per_kg": p.PricePerKg,
				"total_price":  p.TotalPrice,
				"status":       p.Status,
				"created_at":   p.CreatedAt,
			})
		})
	if err != nil {
		return models.Proposal{}, err
	}
	return rec.(models.Proposal), nil
}

// UpdateProposalStatus is a Shape A status transition.
func (e *Engine) UpdateProposalStatus(ctx context.Context, id, status string) (models.Proposal, error) {
	if _, serr := e.requireActor("update_proposal_status", models.KindProposal); serr != nil {
		return models.Proposal{}, serr
	}

	rec, err := e.fireAndConfirm(ctx, "update_proposal_status", models.KindProposal, id,
		func(ctx context.Context) (gateway.Row, error) {
			return e.gw.Update(ctx, models.KindProposal, id, gateway.Row{"status": status})
		})
	if err != nil {
		return models.Proposal{}, err
	}
	return rec.(models.Proposal), nil
}

// AcceptProposal accepts a proposal and marks its request matched. The
// remote enforces at most one accepted proposal per request; a second accept
// surfaces as conflict and leaves the cache untouched. The follow-up request
// transition is best effort.
func (e *Engine) AcceptProposal(ctx context.Context, id string) (models.Proposal, error) {
	p, err := e.UpdateProposalStatus(ctx, id, models.ProposalStatusAccepted)
	if err != nil {
		return models.Proposal{}, err
	}

	if p.RequestID != "" {
		if _, err := e.UpdateBulkRequest(ctx, p.RequestID, gateway.Row{"status": models.RequestStatusMatched}); err != nil {
			e.logger.Warn("Accepted proposal but request transition failed",
				zap.String("proposal_id", id),
				zap.String("request_id", p.RequestID),
				zap.Error(err))
		}
	}
	return p, nil
}
