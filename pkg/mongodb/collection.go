package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Collection wraps a driver collection with spans, metrics and query logs.
// Calls made with a mongo.SessionContext participate in its transaction.
type Collection struct {
	coll   *mongo.Collection
	name   string
	client *Client
}

func (c *Collection) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := c.client.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemMongoDB,
			semconv.DBNameKey.String(c.client.config.Database),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.mongodb.collection", c.name),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	success := err == nil || errors.Is(err, mongo.ErrNoDocuments)
	if !success {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.client.metrics.RecordMongoDBOperation(c.name, operation, success, duration)
	c.client.logger.DatabaseQuery(ctx, c.name, operation, duration, success)
	return err
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	var res *mongo.InsertOneResult
	err := c.observe(ctx, "insertOne", func(ctx context.Context) (err error) {
		res, err = c.coll.InsertOne(ctx, document, opts...)
		return err
	})
	return res, err
}

func (c *Collection) InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	var res *mongo.InsertManyResult
	err := c.observe(ctx, "insertMany", func(ctx context.Context) (err error) {
		res, err = c.coll.InsertMany(ctx, documents, opts...)
		return err
	})
	return res, err
}

// FindOne decodes the first match into out. It returns mongo.ErrNoDocuments when
// nothing matches.
func (c *Collection) FindOne(ctx context.Context, filter interface{}, out interface{}, opts ...*options.FindOneOptions) error {
	return c.observe(ctx, "findOne", func(ctx context.Context) error {
		return c.coll.FindOne(ctx, filter, opts...).Decode(out)
	})
}

// FindAll decodes every match into out, which must be a pointer to a slice.
func (c *Collection) FindAll(ctx context.Context, filter interface{}, out interface{}, opts ...*options.FindOptions) error {
	return c.observe(ctx, "find", func(ctx context.Context) error {
		cursor, err := c.coll.Find(ctx, filter, opts...)
		if err != nil {
			return err
		}
		return cursor.All(ctx, out)
	})
}

// Find returns a cursor for streaming large result sets.
func (c *Collection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	var cursor *mongo.Cursor
	err := c.observe(ctx, "find", func(ctx context.Context) (err error) {
		cursor, err = c.coll.Find(ctx, filter, opts...)
		return err
	})
	return cursor, err
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	var res *mongo.UpdateResult
	err := c.observe(ctx, "updateOne", func(ctx context.Context) (err error) {
		res, err = c.coll.UpdateOne(ctx, filter, update, opts...)
		return err
	})
	return res, err
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	var res *mongo.UpdateResult
	err := c.observe(ctx, "updateMany", func(ctx context.Context) (err error) {
		res, err = c.coll.UpdateMany(ctx, filter, update, opts...)
		return err
	})
	return res, err
}

// FindOneAndUpdate applies update and decodes the resulting document into out.
func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update, out interface{}, opts ...*options.FindOneAndUpdateOptions) error {
	return c.observe(ctx, "findOneAndUpdate", func(ctx context.Context) error {
		return c.coll.FindOneAndUpdate(ctx, filter, update, opts...).Decode(out)
	})
}

func (c *Collection) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	var res *mongo.DeleteResult
	err := c.observe(ctx, "deleteOne", func(ctx context.Context) (err error) {
		res, err = c.coll.DeleteOne(ctx, filter, opts...)
		return err
	})
	return res, err
}

func (c *Collection) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	var res *mongo.DeleteResult
	err := c.observe(ctx, "deleteMany", func(ctx context.Context) (err error) {
		res, err = c.coll.DeleteMany(ctx, filter, opts...)
		return err
	})
	return res, err
}

func (c *Collection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	var n int64
	err := c.observe(ctx, "countDocuments", func(ctx context.Context) (err error) {
		n, err = c.coll.CountDocuments(ctx, filter, opts...)
		return err
	})
	return n, err
}

// Aggregate runs pipeline and decodes all results into out.
func (c *Collection) Aggregate(ctx context.Context, pipeline interface{}, out interface{}, opts ...*options.AggregateOptions) error {
	return c.observe(ctx, "aggregate", func(ctx context.Context) error {
		cursor, err := c.coll.Aggregate(ctx, pipeline, opts...)
		if err != nil {
			return err
		}
		return cursor.All(ctx, out)
	})
}

func (c *Collection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	return c.observe(ctx, "createIndexes", func(ctx context.Context) error {
		_, err := c.coll.Indexes().CreateMany(ctx, models)
		return err
	})
}
