package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	resourcesCollection     = "agg_resource"
	reservationsCollection  = "agg_reservation"
	seriesCollection        = "agg_series"
	waitlistCollection      = "agg_waitlist_entry"
	reassignmentsCollection = "agg_reassignment"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the secondary indexes the repositories query by.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		reservationsCollection: {
			{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "start", Value: 1}, {Key: "end", Value: 1}}},
			{Keys: bson.D{{Key: "series_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end", Value: 1}}},
		},
		seriesCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "resource_id", Value: 1}}},
		},
		waitlistCollection: {
			{Keys: bson.D{{Key: "resource_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		reassignmentsCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "reservation_id", Value: 1}}},
		},
		resourcesCollection: {
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}}},
		},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
