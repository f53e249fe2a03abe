package database

import (
	"context"
	"fmt"
	"time"

	"marketplace/models"
	"marketplace/store"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection              = "users"
	FreelancersCollection        = "freelancers"
	ServicesCollection           = "services"
	RegisteredServicesCollection = "registered_services"
	MessagesCollection           = "messages"
	PaymentsCollection           = "payments"
	ReportsCollection            = "reports"
	IntegrationsCollection       = "integrations"
	JobsCollection               = "jobs"
	PushSubscriptionsCollection  = "push_subscriptions"
)

// DB owns the MongoDB client for the lifetime of the process.
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	log      *logrus.Logger
}

// Connect dials MongoDB, retrying a few times before giving up, and pings it.
func Connect(ctx context.Context, uri, name string, log *logrus.Logger) (*DB, error) {
	const attempts = 3

	var lastErr error
	for i := 1; i <= attempts; i++ {
		client, err := dial(ctx, uri)
		if err == nil {
			log.WithField("database", name).Info("Connected to MongoDB")
			return &DB{Client: client, Database: client.Database(name), log: log}, nil
		}
		lastErr = err
		log.WithError(err).Warnf("MongoDB connection attempt %d/%d failed", i, attempts)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to mongodb: %w", lastErr)
}

func dial(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Client.Ping(ctx, nil)
}

func (db *DB) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Client.Disconnect(ctx); err != nil {
		return err
	}
	db.log.Info("Disconnected from MongoDB")
	return nil
}

// Store builds the repositories backed by this database.
func (db *DB) Store() *store.Store {
	return NewStore(db.Database)
}

func NewStore(d *mongo.Database) *store.Store {
	return &store.Store{
		Users:              NewCollection[models.User](d.Collection(UsersCollection)),
		Freelancers:        NewCollection[models.Freelancer](d.Collection(FreelancersCollection)),
		Services:           NewCollection[models.Service](d.Collection(ServicesCollection)),
		RegisteredServices: NewCollection[models.RegisteredService](d.Collection(RegisteredServicesCollection)),
		Messages:           NewCollection[models.Message](d.Collection(MessagesCollection)),
		Payments:           NewCollection[models.Payment](d.Collection(PaymentsCollection)),
		Reports:            NewCollection[models.Report](d.Collection(ReportsCollection)),
		Integrations:       NewCollection[models.Integration](d.Collection(IntegrationsCollection)),
		Jobs:               NewCollection[models.Job](d.Collection(JobsCollection)),
		PushSubscriptions:  NewCollection[models.PushSubscription](d.Collection(PushSubscriptionsCollection)),
	}
}

// EnsureIndexes creates the unique and lookup indexes the application relies on.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		UsersCollection:       {{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}},
		FreelancersCollection: {{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}},
		ServicesCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "status", Value: 1}}},
		},
		RegisteredServicesCollection: {
			{Keys: bson.D{{Key: "userEmail", Value: 1}, {Key: "registrationDate", Value: -1}}},
		},
		MessagesCollection: {
			{Keys: bson.D{{Key: "serviceId", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		PaymentsCollection: {
			{Keys: bson.D{{Key: "transactionId", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "userEmail", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		IntegrationsCollection: {{Keys: bson.D{{Key: "name", Value: 1}}, Options: unique}},
		JobsCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduledFor", Value: 1}}},
		},
		PushSubscriptionsCollection: {
			{Keys: bson.D{{Key: "endpoint", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "ownerEmail", Value: 1}}},
		},
	}

	for name, indexes := range specs {
		if _, err := db.Database.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	db.log.Info("MongoDB indexes ensured")
	return nil
}
