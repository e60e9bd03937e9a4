package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
)

const eventsCollectionName = "ledger_events"

// EventJournal persists the ledger's append-only event log in MongoDB. Each
// Append writes the whole batch as one document keyed by the first sequence
// number: a single-document insert is atomic, so a multi-event operation is
// either fully durable or not at all, and sequence reuse is rejected by the
// _id index.
type EventJournal struct {
	db *mongo.Database
}

func NewEventJournal(client *mongo.Client, dbName string) *EventJournal {
	return &EventJournal{db: client.Database(dbName)}
}

type batchDocument struct {
	FirstSeq uint64          `bson:"_id"`
	LastSeq  uint64          `bson:"last_seq"`
	Events   []eventDocument `bson:"events"`
}

type eventDocument struct {
	Seq    uint64             `bson:"seq"`
	ID     string             `bson:"event_id"`
	Type   string             `bson:"type"`
	At     primitive.DateTime `bson:"at"`
	Hash   string             `bson:"hash,omitempty"`
	Owner  string             `bson:"owner,omitempty"`
	Buyer  string             `bson:"buyer,omitempty"`
	Price  int64              `bson:"price,omitempty"`
	Fee    int64              `bson:"fee,omitempty"`
	FeeBps int32              `bson:"fee_bps,omitempty"`
	Amount int64              `bson:"amount,omitempty"`
}

func toEventDocument(ev *domain.Event) eventDocument {
	doc := eventDocument{
		Seq:    ev.Seq,
		ID:     ev.ID,
		Type:   string(ev.Type),
		At:     primitive.NewDateTimeFromTime(ev.At),
		Owner:  string(ev.Owner),
		Buyer:  string(ev.Buyer),
		Price:  int64(ev.Price),
		Fee:    int64(ev.Fee),
		FeeBps: int32(ev.FeeBps),
		Amount: int64(ev.Amount),
	}
	if !ev.Hash.IsZero() {
		doc.Hash = ev.Hash.String()
	}
	return doc
}

func toEvent(doc *eventDocument) (domain.Event, error) {
	ev := domain.Event{
		Seq:    doc.Seq,
		ID:     doc.ID,
		Type:   domain.EventType(doc.Type),
		At:     doc.At.Time().UTC(),
		Owner:  domain.Address(doc.Owner),
		Buyer:  domain.Address(doc.Buyer),
		Price:  uint64(doc.Price),
		Fee:    uint64(doc.Fee),
		FeeBps: uint32(doc.FeeBps),
		Amount: uint64(doc.Amount),
	}
	if doc.Hash != "" {
		hash, err := domain.ParseHash(doc.Hash)
		if err != nil {
			return domain.Event{}, fmt.Errorf("event %d has malformed hash %q: %w", doc.Seq, doc.Hash, err)
		}
		ev.Hash = hash
	}
	return ev, nil
}

func (j *EventJournal) Append(ctx context.Context, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]eventDocument, len(events))
	for i, ev := range events {
		docs[i] = toEventDocument(ev)
	}
	batch := batchDocument{
		FirstSeq: events[0].Seq,
		LastSeq:  events[len(events)-1].Seq,
		Events:   docs,
	}

	_, err := j.db.Collection(eventsCollectionName).InsertOne(ctx, batch)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to append ledger events: sequence already used: %w", err)
		}
		return fmt.Errorf("failed to append ledger events to mongo: %w", err)
	}
	return nil
}

func (j *EventJournal) Load(ctx context.Context, fromSeq uint64) ([]domain.Event, error) {
	filter := bson.M{"last_seq": bson.M{"$gte": fromSeq}}
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := j.db.Collection(eventsCollectionName).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger events from mongo: %w", err)
	}
	defer cursor.Close(ctx)

	var events []domain.Event
	for cursor.Next(ctx) {
		var batch batchDocument
		if err := cursor.Decode(&batch); err != nil {
			return nil, fmt.Errorf("failed to decode ledger event batch: %w", err)
		}
		for i := range batch.Events {
			if batch.Events[i].Seq < fromSeq {
				continue
			}
			ev, err := toEvent(&batch.Events[i])
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger events: %w", err)
	}
	return events, nil
}

func (j *EventJournal) LastSeq(ctx context.Context) (uint64, error) {
	findOptions := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})

	var batch batchDocument
	err := j.db.Collection(eventsCollectionName).FindOne(ctx, bson.M{}, findOptions).Decode(&batch)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read last ledger sequence: %w", err)
	}
	return batch.LastSeq, nil
}
