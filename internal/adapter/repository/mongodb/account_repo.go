package mongodb

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
)

const accountsCollectionName = "settlement_accounts"

// AccountRepository is the persistent settlement bank: one document per
// participant, balance mutated with atomic conditional updates so a debit can
// never overdraw the account.
type AccountRepository struct {
	db *mongo.Database
}

func NewAccountRepository(client *mongo.Client, dbName string) *AccountRepository {
	return &AccountRepository{db: client.Database(dbName)}
}

type accountDocument struct {
	Address string `bson:"_id"`
	Balance int64  `bson:"balance"`
}

func (r *AccountRepository) Credit(ctx context.Context, addr domain.Address, amount uint64) error {
	if addr.IsZero() {
		return fmt.Errorf("account repository: credit to empty address")
	}
	if amount > math.MaxInt64 {
		return fmt.Errorf("account repository: credit amount %d overflows the stored balance type", amount)
	}
	filter := bson.M{"_id": string(addr)}
	update := bson.M{"$inc": bson.M{"balance": int64(amount)}}

	_, err := r.db.Collection(accountsCollectionName).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to credit account %s: %w", addr, err)
	}
	return nil
}

func (r *AccountRepository) Debit(ctx context.Context, addr domain.Address, amount uint64) error {
	if amount > math.MaxInt64 {
		return fmt.Errorf("account repository: debit amount %d overflows the stored balance type", amount)
	}
	// The balance precondition is part of the filter, so the check and the
	// decrement are a single atomic operation.
	filter := bson.M{"_id": string(addr), "balance": bson.M{"$gte": int64(amount)}}
	update := bson.M{"$inc": bson.M{"balance": -int64(amount)}}

	res, err := r.db.Collection(accountsCollectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to debit account %s: %w", addr, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

func (r *AccountRepository) BalanceOf(ctx context.Context, addr domain.Address) (uint64, error) {
	var doc accountDocument
	err := r.db.Collection(accountsCollectionName).FindOne(ctx, bson.M{"_id": string(addr)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read balance of account %s: %w", addr, err)
	}
	return uint64(doc.Balance), nil
}
