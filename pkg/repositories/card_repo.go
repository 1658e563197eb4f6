package repositories

import (
	"context"

	"github.com/corebank/ledger-core/pkg/database"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CardRepository stores the cards issued at account opening. Non-core: cards
// never gate ledger operations.
type CardRepository interface {
	Create(ctx context.Context, tx pgx.Tx, card models.Card) error
	NumberExists(ctx context.Context, tx pgx.Tx, cardNumber string) (bool, error)
	ListByAccount(ctx context.Context, q database.Querier, accountID uuid.UUID) ([]models.Card, error)
}

type CardRepositoryImpl struct {
}

func NewCardRepository() CardRepository {
	return &CardRepositoryImpl{}
}

func (c CardRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, card models.Card) error {
	_, err := tx.Exec(ctx, `INSERT INTO cards (id, account_id, card_number, card_type, cvv, expiry_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		card.ID, card.AccountID, card.CardNumber, card.CardType, card.CVV, card.ExpiryDate, card.Status, card.CreatedAt)
	return err
}

func (c CardRepositoryImpl) NumberExists(ctx context.Context, tx pgx.Tx, cardNumber string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cards WHERE card_number = $1)`, cardNumber).Scan(&exists)
	return exists, err
}

func (c CardRepositoryImpl) ListByAccount(ctx context.Context, q database.Querier, accountID uuid.UUID) ([]models.Card, error) {
	rows, err := q.Query(ctx, `SELECT id, account_id, card_number, card_type, cvv, expiry_date, status, created_at
		FROM cards WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		var card models.Card
		if err = rows.Scan(
			&card.ID, &card.AccountID, &card.CardNumber, &card.CardType,
			&card.CVV, &card.ExpiryDate, &card.Status, &card.CreatedAt,
		); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}
