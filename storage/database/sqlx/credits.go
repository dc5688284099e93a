package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core/credits"
)

type creditsRepository struct {
	db *sqlx.DB
}

func NewCreditsRepository(db *sqlx.DB) *creditsRepository {
	return &creditsRepository{db: db}
}

func (repo *creditsRepository) HasAward(ctx context.Context, instanceID, userID int) (bool, error) {
	var has bool
	query := `SELECT EXISTS (SELECT 1 FROM pulse_credits WHERE instance_id = $1 AND user_id = $2)`
	err := sqlx.GetContext(ctx, repo.db, &has, query, instanceID, userID)
	return has, errors.Wrap(err, "checking award")
}

func (repo *creditsRepository) CreateAward(ctx context.Context, award *credits.Award) error {
	query := `INSERT INTO pulse_credits (instance_id, user_id, amount, awarded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err := repo.db.QueryRowxContext(ctx, query,
		award.InstanceID, award.UserID, award.Amount, award.AwardedAt).Scan(&award.ID)
	return errors.Wrap(err, "creating award")
}

func (repo *creditsRepository) TotalCredits(ctx context.Context, userID int) (float64, error) {
	var total float64
	query := `SELECT COALESCE(SUM(amount), 0) FROM pulse_credits WHERE user_id = $1`
	err := sqlx.GetContext(ctx, repo.db, &total, query, userID)
	return total, errors.Wrap(err, "summing credits")
}

func (repo *creditsRepository) DeleteByInstance(ctx context.Context, instanceID int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM pulse_credits WHERE instance_id = $1`, instanceID)
	return errors.Wrap(err, "deleting awards")
}

// creditsBalance mirrors awards onto the users.credits column.
type creditsBalance struct {
	db *sqlx.DB
}

func NewCreditsBalance(db *sqlx.DB) *creditsBalance {
	return &creditsBalance{db: db}
}

func (b *creditsBalance) AddCredits(ctx context.Context, userID int, amount float64) error {
	res, err := b.db.ExecContext(ctx,
		`UPDATE users SET credits = credits + $2 WHERE id = $1`, userID, amount)
	if err != nil {
		return errors.Wrap(err, "adding credits")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf("adding credits: unknown user %d", userID)
	}
	return nil
}
