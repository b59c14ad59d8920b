package implementation

import (
	"context"
	"time"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUplinkRepository stores the raw uplink audit log in a MongoDB
// collection. Appends are fire-and-forget from the pipeline's point of view;
// a short timeout keeps a slow audit store from stalling ingestion.
type MongoUplinkRepository struct {
	coll *mongo.Collection
}

func NewMongoUplinkRepository(coll *mongo.Collection) *MongoUplinkRepository {
	return &MongoUplinkRepository{coll: coll}
}

func (r *MongoUplinkRepository) Append(ctx context.Context, uplink taismodels.DeviceUplink) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, uplink)
	return err
}

func (r *MongoUplinkRepository) ListByDevice(ctx context.Context, devEUI string, limit int) ([]taismodels.DeviceUplink, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "received_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{"deveui": devEUI}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []taismodels.DeviceUplink
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
