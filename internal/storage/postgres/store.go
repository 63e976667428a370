package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"govscope/internal/model"
)

// Store provides Postgres persistence for proposals, the sync cursor, and
// the notification ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Get returns the singleton sync state row.
func (s *Store) Get(ctx context.Context) (model.SyncState, error) {
	var (
		state    model.SyncState
		syncAt   *time.Time
		errorMsg *string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT last_synced_block, last_sync_at, sync_in_progress, error_message
		FROM sync_state WHERE id = 1
	`)
	if err := row.Scan(&state.LastSyncedBlock, &syncAt, &state.SyncInProgress, &errorMsg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SyncState{}, fmt.Errorf("sync_state row missing; apply schema.sql")
		}
		return model.SyncState{}, err
	}
	if syncAt != nil {
		state.LastSyncAt = *syncAt
	}
	if errorMsg != nil {
		state.ErrorMessage = *errorMsg
	}
	return state, nil
}

// TryBegin atomically claims the sync lock; only one caller can win.
func (s *Store) TryBegin(ctx context.Context, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_state
		SET sync_in_progress = TRUE, last_sync_at = $1
		WHERE id = 1 AND sync_in_progress = FALSE
	`, now.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AdvanceCursor moves the cursor to a completed chunk boundary. GREATEST
// keeps it monotonic.
func (s *Store) AdvanceCursor(ctx context.Context, block uint64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_state
		SET last_synced_block = GREATEST(last_synced_block, $1)
		WHERE id = 1
	`, int64(block))
	return err
}

// Finish releases the sync lock and records the last failure, if any.
func (s *Store) Finish(ctx context.Context, errMsg string) error {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_state
		SET sync_in_progress = FALSE, error_message = $1
		WHERE id = 1
	`, msg)
	return err
}

// InsertIfAbsent writes a proposal row unless its composite key exists.
// First write wins; duplicates are not an error.
func (s *Store) InsertIfAbsent(ctx context.Context, p model.Proposal) (bool, error) {
	actions, err := json.Marshal(p.Actions)
	if err != nil {
		return false, fmt.Errorf("marshal actions: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO proposals (
			proposal_id, plugin_address, plugin_type, title, description, status,
			start_date, end_date, executed_at,
			tally_yes, tally_no, tally_abstain,
			support_threshold, min_participation, min_duration,
			current_stage, is_canceled, is_open,
			approvals, min_approvals,
			actions, block_number, transaction_hash, creator,
			created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,now(),now()
		)
		ON CONFLICT (proposal_id, plugin_address) DO NOTHING
	`,
		p.ProposalID,
		p.PluginAddress,
		string(p.PluginType),
		p.Title,
		p.Description,
		string(p.Status),
		int64(p.StartDate),
		int64(p.EndDate),
		p.ExecutedAt,
		p.TallyYes,
		p.TallyNo,
		p.TallyAbstain,
		int64(p.SupportThreshold),
		int64(p.MinParticipation),
		int64(p.MinDuration),
		int32(p.CurrentStage),
		p.IsCanceled,
		p.IsOpen,
		int32(p.Approvals),
		int32(p.MinApprovals),
		actions,
		int64(p.BlockNumber),
		p.TxHash,
		p.Creator,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListActive returns every proposal currently in the ACTIVE status.
func (s *Store) ListActive(ctx context.Context) ([]model.Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT proposal_id, plugin_address, plugin_type, title, description, status,
			start_date, end_date, executed_at,
			tally_yes, tally_no, tally_abstain,
			support_threshold, min_participation, min_duration,
			current_stage, is_canceled, is_open,
			approvals, min_approvals,
			actions, block_number, transaction_hash, creator
		FROM proposals
		WHERE status = $1
		ORDER BY block_number
	`, string(model.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	proposals := make([]model.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// Update rewrites the mutable columns of an existing proposal row. The
// composite key never changes.
func (s *Store) Update(ctx context.Context, p model.Proposal) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE proposals SET
			status = $3,
			executed_at = $4,
			tally_yes = $5,
			tally_no = $6,
			tally_abstain = $7,
			support_threshold = $8,
			min_participation = $9,
			min_duration = $10,
			current_stage = $11,
			is_canceled = $12,
			is_open = $13,
			approvals = $14,
			min_approvals = $15,
			updated_at = now()
		WHERE proposal_id = $1 AND plugin_address = $2
	`,
		p.ProposalID,
		p.PluginAddress,
		string(p.Status),
		p.ExecutedAt,
		p.TallyYes,
		p.TallyNo,
		p.TallyAbstain,
		int64(p.SupportThreshold),
		int64(p.MinParticipation),
		int64(p.MinDuration),
		int32(p.CurrentStage),
		p.IsCanceled,
		p.IsOpen,
		int32(p.Approvals),
		int32(p.MinApprovals),
	)
	return err
}

// Has reports whether a notification was already recorded for the key.
func (s *Store) Has(ctx context.Context, proposalID, notificationType string) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_history
			WHERE proposal_id = $1 AND notification_type = $2
		)
	`, proposalID, notificationType)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Record writes the dedup ledger row after a successful send.
func (s *Store) Record(ctx context.Context, proposalID, notificationType string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_history (proposal_id, notification_type, sent_at)
		VALUES ($1, $2, now())
		ON CONFLICT (proposal_id, notification_type) DO NOTHING
	`, proposalID, notificationType)
	return err
}

func scanProposal(rows pgx.Rows) (model.Proposal, error) {
	var (
		p                model.Proposal
		pluginType       string
		status           string
		startDate        int64
		endDate          int64
		executedAt       *time.Time
		supportThreshold int64
		minParticipation int64
		minDuration      int64
		currentStage     int32
		approvals        int32
		minApprovals     int32
		actions          []byte
		blockNumber      int64
	)
	if err := rows.Scan(
		&p.ProposalID, &p.PluginAddress, &pluginType, &p.Title, &p.Description, &status,
		&startDate, &endDate, &executedAt,
		&p.TallyYes, &p.TallyNo, &p.TallyAbstain,
		&supportThreshold, &minParticipation, &minDuration,
		&currentStage, &p.IsCanceled, &p.IsOpen,
		&approvals, &minApprovals,
		&actions, &blockNumber, &p.TxHash, &p.Creator,
	); err != nil {
		return model.Proposal{}, err
	}

	p.PluginType = model.PluginType(pluginType)
	p.Status = model.Status(status)
	p.StartDate = uint64(startDate)
	p.EndDate = uint64(endDate)
	p.ExecutedAt = executedAt
	p.SupportThreshold = uint32(supportThreshold)
	p.MinParticipation = uint32(minParticipation)
	p.MinDuration = uint64(minDuration)
	p.CurrentStage = uint16(currentStage)
	p.Approvals = uint16(approvals)
	p.MinApprovals = uint16(minApprovals)
	p.BlockNumber = uint64(blockNumber)

	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &p.Actions); err != nil {
			return model.Proposal{}, fmt.Errorf("unmarshal actions: %w", err)
		}
	}
	return p, nil
}
