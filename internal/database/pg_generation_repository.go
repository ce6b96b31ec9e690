package database

import (
	"context"
	"errors"
	"fmt"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	generationColumns = `generation_id, request_key, user_id, state, cause, attempts,
		result_story_id, error, submitted_at, completed_at`

	insertGenerationQuery = `
		INSERT INTO generation_history (
			generation_id, request_key, user_id, state, cause, attempts,
			result_story_id, error, submitted_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (generation_id) WHERE generation_id <> '' DO UPDATE SET
			request_key = EXCLUDED.request_key,
			user_id = EXCLUDED.user_id,
			state = EXCLUDED.state,
			cause = EXCLUDED.cause,
			attempts = EXCLUDED.attempts,
			result_story_id = EXCLUDED.result_story_id,
			error = EXCLUDED.error,
			submitted_at = EXCLUDED.submitted_at,
			completed_at = EXCLUDED.completed_at
	`
	getGenerationByIDQuery = `SELECT ` + generationColumns + `
		FROM generation_history
		WHERE generation_id = $1`
	listGenerationsByUserQuery = `SELECT ` + generationColumns + `
		FROM generation_history
		WHERE user_id = $1
		ORDER BY completed_at DESC, id DESC
		LIMIT $2`
)

const defaultListLimit = 50

var _ interfaces.GenerationRepository = (*PgGenerationRepository)(nil)

// PgGenerationRepository хранит завершенные генерации в Postgres.
type PgGenerationRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgGenerationRepository создает репозиторий поверх пула или транзакции.
func NewPgGenerationRepository(db DBTX, logger *zap.Logger) *PgGenerationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgGenerationRepository{
		db:     db,
		logger: logger.Named("PgGenerationRepo"),
	}
}

// Save сохраняет запись. Запись с тем же непустым GenerationID перезаписывается.
func (r *PgGenerationRepository) Save(ctx context.Context, record models.GenerationRecord) error {
	tag, err := r.db.Exec(ctx, insertGenerationQuery,
		record.GenerationID,
		record.RequestKey,
		record.UserID,
		record.State,
		string(record.Cause),
		record.Attempts,
		record.ResultStoryID,
		record.Error,
		record.SubmittedAt,
		record.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save generation record",
			zap.String("generation_id", record.GenerationID),
			zap.String("request_key", record.RequestKey),
			zap.Error(err),
		)
		return fmt.Errorf("error saving generation record: %w", err)
	}
	r.logger.Debug("Generation record saved",
		zap.String("generation_id", record.GenerationID),
		zap.Int64("rows_affected", tag.RowsAffected()),
	)
	return nil
}

func (r *PgGenerationRepository) GetByGenerationID(ctx context.Context, generationID string) (*models.GenerationRecord, error) {
	log := r.logger.With(zap.String("generation_id", generationID))

	var record models.GenerationRecord
	if err := pgxscan.Get(ctx, r.db, &record, getGenerationByIDQuery, generationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debug("Generation record not found")
			return nil, models.ErrNotFound
		}
		log.Error("Error getting generation record", zap.Error(err))
		return nil, fmt.Errorf("failed to get generation record %s: %w", generationID, err)
	}
	return &record, nil
}

// ListByUser возвращает последние записи пользователя, новые первыми.
func (r *PgGenerationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.GenerationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	records := []models.GenerationRecord{}
	if err := pgxscan.Select(ctx, r.db, &records, listGenerationsByUserQuery, userID, limit); err != nil {
		r.logger.Error("Error listing generation records", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list generation records for user %s: %w", userID, err)
	}
	return records, nil
}
