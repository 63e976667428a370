package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"govscope/internal/model"
	"govscope/internal/storage"
)

// Dispatcher sends one notification per new proposal, deduplicated through
// the ledger. Delivery is fire-and-forget: a failed send is logged and never
// propagated to the indexing path.
type Dispatcher struct {
	url    string
	ledger storage.NotificationLedger
	client *http.Client
	logger *zap.Logger
}

func NewDispatcher(url string, ledger storage.NotificationLedger, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		url:    url,
		ledger: ledger,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type newProposalPayload struct {
	Type       string `json:"type"`
	ProposalID string `json:"proposalId"`
	Title      string `json:"title"`
}

// NotifyNewProposal sends the new_proposal notification unless the ledger
// already holds a row for this proposal. The ledger row is recorded only
// after a successful send.
func (d *Dispatcher) NotifyNewProposal(ctx context.Context, p model.Proposal) {
	kind := model.NotificationNewProposal

	sent, err := d.ledger.Has(ctx, p.ProposalID, kind)
	if err != nil {
		d.logger.Warn("notification ledger check failed",
			zap.String("proposal_id", p.ProposalID),
			zap.Error(err),
		)
		return
	}
	if sent {
		d.logger.Debug("notification already sent", zap.String("proposal_id", p.ProposalID))
		return
	}

	if d.url == "" {
		d.logger.Debug("notify url not configured, skipping send",
			zap.String("proposal_id", p.ProposalID),
		)
		return
	}

	if err := d.send(ctx, newProposalPayload{
		Type:       kind,
		ProposalID: p.ProposalID,
		Title:      p.Title,
	}); err != nil {
		d.logger.Warn("notification send failed",
			zap.String("proposal_id", p.ProposalID),
			zap.Error(err),
		)
		return
	}

	if err := d.ledger.Record(ctx, p.ProposalID, kind); err != nil {
		d.logger.Warn("notification ledger record failed",
			zap.String("proposal_id", p.ProposalID),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("notification sent",
		zap.String("proposal_id", p.ProposalID),
		zap.String("type", kind),
	)
}

func (d *Dispatcher) send(ctx context.Context, payload newProposalPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
