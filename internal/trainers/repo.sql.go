package trainers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL access to trainer profiles.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const trainerColumns = `
	t.id, t.user_id, u.email, COALESCE(ip.full_name, ''), u.region_id, t.is_active, t.created_at`

const trainerJoins = `
	FROM trainer_profiles t
	JOIN users u ON u.id = t.user_id
	LEFT JOIN individual_profiles ip ON ip.user_id = u.id`

func (r *Repository) List(ctx context.Context, activeOnly bool) ([]TrainerProfile, error) {
	query := `SELECT ` + trainerColumns + trainerJoins
	if activeOnly {
		query += ` WHERE t.is_active`
	}
	query += ` ORDER BY u.email`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var trainers []TrainerProfile
	for rows.Next() {
		tp, err := scanTrainer(rows)
		if err != nil {
			return nil, err
		}
		trainers = append(trainers, tp)
	}
	return trainers, rows.Err()
}

func (r *Repository) GetByUser(ctx context.Context, userID int64) (TrainerProfile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+trainerColumns+trainerJoins+` WHERE t.user_id = $1`, userID)
	return scanTrainer(row)
}

// Ensure creates the profile for a user when it does not exist yet, and
// reactivates it if it had been deactivated.
func (r *Repository) Ensure(ctx context.Context, userID int64) (TrainerProfile, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO trainer_profiles (user_id, is_active, created_at)
		VALUES ($1, TRUE, NOW())
		ON CONFLICT (user_id) DO UPDATE SET is_active = TRUE`, userID)
	if err != nil {
		return TrainerProfile{}, err
	}
	return r.GetByUser(ctx, userID)
}

// Remove deactivates the profile. The row is kept for history.
func (r *Repository) Remove(ctx context.Context, userID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE trainer_profiles SET is_active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrainer(row pgx.Row) (TrainerProfile, error) {
	var tp TrainerProfile
	err := row.Scan(&tp.ID, &tp.UserID, &tp.Email, &tp.FullName, &tp.RegionID, &tp.IsActive, &tp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TrainerProfile{}, ErrNotFound
	}
	return tp, err
}
