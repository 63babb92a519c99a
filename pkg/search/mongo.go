package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

const hitsFacet = "hits"

// MongoBackend implements Backend over a MongoDB time-series collection.
// Daily partitions map to one-day windows on the timestamp field, so a
// single collection serves every index name.
type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// mongoDocument is the stored shape of a measurement in MongoDB
type mongoDocument struct {
	ID          any       `bson:"_id,omitempty"`
	Name        *string   `bson:"n,omitempty"`
	Unit        *string   `bson:"u,omitempty"`
	Value       *float64  `bson:"v,omitempty"`
	StringValue *string   `bson:"vs,omitempty"`
	BoolValue   *bool     `bson:"vb,omitempty"`
	UpdateTime  *float64  `bson:"ut,omitempty"`
	Sum         *float64  `bson:"s,omitempty"`
	UUID        *string   `bson:"uuid,omitempty"`
	Timestamp   time.Time `bson:"timestamp"`
}

// NewMongoConnection connects to MongoDB and verifies the primary is reachable
func NewMongoConnection(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}

// NewMongoBackend creates a backend over database.collection, creating the
// time-series collection and its lookup index when missing.
func NewMongoBackend(ctx context.Context, client *mongo.Client, database, collection string, logger *zap.Logger) (*MongoBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db := client.Database(database)

	tsOptions := options.CreateCollection().SetTimeSeriesOptions(
		options.TimeSeries().
			SetTimeField("timestamp").
			SetMetaField("n").
			SetGranularity("seconds"),
	)
	if err := db.CreateCollection(setupCtx, collection, tsOptions); err != nil {
		// NamespaceExists on every start after the first
		logger.Debug("create collection skipped", zap.String("collection", collection), zap.Error(err))
	}

	coll := db.Collection(collection)
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "n", Value: 1}, {Key: "timestamp", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(setupCtx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoBackend{
		client:     client,
		collection: coll,
		logger:     logger,
	}, nil
}

// Search implements Backend.Search as a single $match + $facet pipeline
func (m *MongoBackend) Search(ctx context.Context, req *Request) (*Response, error) {
	pipeline, err := buildMongoPipeline(req)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		return &Response{Aggregations: map[string]AggregationResult{}}, nil
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to execute aggregation: %w", err)
	}
	defer cursor.Close(ctx)

	var results []bson.Raw
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation: %w", err)
	}
	if len(results) == 0 {
		return &Response{Aggregations: map[string]AggregationResult{}}, nil
	}

	return decodeMongoFacets(req, results[0])
}

// Ping implements Backend.Ping
func (m *MongoBackend) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close implements Backend.Close
func (m *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// buildMongoPipeline translates a request into an aggregation pipeline.
// It returns nil when the request asks for neither hits nor aggregations.
func buildMongoPipeline(req *Request) ([]bson.M, error) {
	match, err := buildMongoMatch(req)
	if err != nil {
		return nil, err
	}

	facets := bson.M{}

	if req.Size > 0 {
		stages := bson.A{}
		if len(req.Sort) > 0 {
			sort := bson.D{}
			for _, s := range req.Sort {
				order := 1
				if s.Descending {
					order = -1
				}
				sort = append(sort, bson.E{Key: mongoField(s.Field), Value: order})
			}
			stages = append(stages, bson.M{"$sort": sort})
		}
		stages = append(stages, bson.M{"$limit": req.Size})
		facets[hitsFacet] = stages
	}

	if req.Avg != nil {
		facets[req.Avg.Name] = bson.A{
			bson.M{"$group": bson.M{
				"_id":   nil,
				"value": bson.M{"$avg": "$" + mongoField(req.Avg.Field)},
			}},
		}
	}

	if req.Terms != nil {
		field := mongoField(req.Terms.Field)
		facets[req.Terms.Name] = bson.A{
			bson.M{"$match": bson.M{field: bson.M{"$exists": true, "$ne": nil}}},
			bson.M{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}},
			bson.M{"$sort": bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}},
			bson.M{"$limit": req.Terms.Size},
		}
	}

	if len(facets) == 0 {
		return nil, nil
	}

	return []bson.M{
		{"$match": match},
		{"$facet": facets},
	}, nil
}

func buildMongoMatch(req *Request) (bson.M, error) {
	clauses := bson.A{}

	if !IsPattern(req.Index) {
		day, err := ParsePartition(req.Index)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, bson.M{"timestamp": bson.M{
			"$gte": day,
			"$lt":  day.Add(24 * time.Hour),
		}})
	}

	for _, w := range req.Wildcards {
		regex := bson.Regex{Pattern: WildcardRegexp(w.Field, w.Pattern)}
		if !strings.HasSuffix(w.Field, KeywordSuffix) {
			regex.Options = "i"
		}
		clauses = append(clauses, bson.M{mongoField(w.Field): regex})
	}

	for _, rg := range req.Ranges {
		clauses = append(clauses, bson.M{mongoField(rg.Field): bson.M{
			"$gte": rg.Gte,
			"$lte": rg.Lte,
		}})
	}

	if len(clauses) == 0 {
		return bson.M{}, nil
	}
	return bson.M{"$and": clauses}, nil
}

func decodeMongoFacets(req *Request, raw bson.Raw) (*Response, error) {
	resp := &Response{Aggregations: map[string]AggregationResult{}}

	if req.Size > 0 {
		var docs []mongoDocument
		if v, err := raw.LookupErr(hitsFacet); err == nil {
			if err := v.Unmarshal(&docs); err != nil {
				return nil, fmt.Errorf("failed to decode hits: %w", err)
			}
		}
		resp.Hits = make([]Hit, 0, len(docs))
		for _, d := range docs {
			resp.Hits = append(resp.Hits, d.toHit())
		}
	}

	if req.Avg != nil {
		var groups []struct {
			Value *float64 `bson:"value"`
		}
		if v, err := raw.LookupErr(req.Avg.Name); err == nil {
			if err := v.Unmarshal(&groups); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", req.Avg.Name, err)
			}
		}
		result := AggregationResult{}
		if len(groups) > 0 {
			result.Value = groups[0].Value
		}
		resp.Aggregations[req.Avg.Name] = result
	}

	if req.Terms != nil {
		var groups []struct {
			Key   string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if v, err := raw.LookupErr(req.Terms.Name); err == nil {
			if err := v.Unmarshal(&groups); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", req.Terms.Name, err)
			}
		}
		result := AggregationResult{}
		for _, g := range groups {
			result.Buckets = append(result.Buckets, Bucket{Key: g.Key, DocCount: g.Count})
		}
		resp.Aggregations[req.Terms.Name] = result
	}

	return resp, nil
}

func (d mongoDocument) toHit() Hit {
	var id string
	switch v := d.ID.(type) {
	case bson.ObjectID:
		id = v.Hex()
	case nil:
	default:
		id = fmt.Sprint(v)
	}

	return Hit{
		ID: id,
		Document: Document{
			Name:        d.Name,
			Unit:        d.Unit,
			Value:       d.Value,
			StringValue: d.StringValue,
			BoolValue:   d.BoolValue,
			UpdateTime:  d.UpdateTime,
			Sum:         d.Sum,
			UUID:        d.UUID,
			Timestamp:   d.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}
}

// mongoField maps an index field to its document key; MongoDB has no
// keyword sub-fields.
func mongoField(field string) string {
	return strings.TrimSuffix(field, KeywordSuffix)
}
