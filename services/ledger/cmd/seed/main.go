package main

import (
	"context"
	"flag"
	"math/rand"
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/database"
	"github.com/corebank/ledger-core/pkg/idgen"
	"github.com/corebank/ledger-core/pkg/models"
	"github.com/corebank/ledger-core/pkg/repositories"
	"github.com/corebank/ledger-core/services/ledger/configs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// main seeds accounts and their cards into the database.
// It initializes logging, loads config, connects to the database, runs
// migrations, and performs inserts inside a single transaction.
func main() {
	noOfAccounts := flag.Int("noOfAccounts", 100, "Number of accounts to seed")
	minBalance := flag.Float64("minBalance", 700.0, "Min opening balance")
	maxBalance := flag.Float64("maxBalance", 1000.0, "Max opening balance")
	seedPin := flag.String("pin", "1234", "PIN assigned to every seeded account")

	flag.Parse()

	// Initialize logger
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync()

	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(*seedPin), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("failed_to_hash_pin", zap.Error(err))
	}

	// Initialize postgres db
	dbConfig := database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	}

	ctx := context.Background()
	db, closer, err := database.New(ctx, logger, dbConfig)
	if err != nil {
		logger.Fatal("failed_to_init_DB", zap.Error(err))
	}
	defer closer()

	// Initialize db migrations
	err = database.RunMigrations(logger, cfg.PrimaryDbAddr)
	if err != nil {
		logger.Fatal("failed_to_run_database_migrations", zap.Error(err))
	}

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository()
	cardRepo := repositories.NewCardRepository()

	minBal := *minBalance
	maxBal := *maxBalance
	if minBal > maxBal {
		// swap to be safe
		minBal, maxBal = maxBal, minBal
	}

	accountTypes := []pkg.AccountType{pkg.AccountTypeSavings, pkg.AccountTypeChecking, pkg.AccountTypeCurrent}

	// Seed data within a transaction to ensure atomicity.
	err = db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for i := 1; i <= *noOfAccounts; i++ {
			number, err := uniqueNumber(ctx, tx, accountRepo.NumberExists, idgen.AccountNumber, cfg.IdMaxAttempts)
			if err != nil {
				return err
			}
			bal := decimal.NewFromFloat(minBal + rand.Float64()*(maxBal-minBal)).Round(2)
			now := time.Now()
			account := models.Account{
				ID:            uuid.New(),
				UserID:        uuid.New(),
				AccountNumber: number,
				AccountType:   accountTypes[rand.Intn(len(accountTypes))],
				Balance:       bal,
				PinHash:       string(pinHash),
				Status:        pkg.AccountStatusActive,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			logger.Info("creating_account",
				zap.Int("i", i),
				zap.String("account_number", account.AccountNumber),
				zap.String("balance", bal.StringFixed(2)))
			if err := accountRepo.Create(ctx, tx, account); err != nil {
				return err
			}

			cardNumber, err := uniqueNumber(ctx, tx, cardRepo.NumberExists, idgen.CardNumber, cfg.IdMaxAttempts)
			if err != nil {
				return err
			}
			card := models.Card{
				ID:         uuid.New(),
				AccountID:  account.ID,
				CardNumber: cardNumber,
				CardType:   pkg.CardTypeDebit,
				CVV:        idgen.CVV(),
				ExpiryDate: now.AddDate(cfg.CardValidityYears, 0, 0),
				Status:     pkg.CardStatusActive,
				CreatedAt:  now,
			}
			if err := cardRepo.Create(ctx, tx, card); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		logger.Fatal("failed_to_seed_data", zap.Error(err))
	}
	logger.Info("data_seeded_successfully", zap.Int("accounts", *noOfAccounts))
}

func uniqueNumber(ctx context.Context, tx pgx.Tx,
	exists func(context.Context, pgx.Tx, string) (bool, error), gen func() string, maxAttempts int) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		candidate := gen()
		taken, err := exists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", pkg.NewAppError(pkg.ErrIdCollisionCode, "could not allocate a unique number", nil)
}
