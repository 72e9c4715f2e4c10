package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/emilythestrangee/tally/backend/internal/models"
	"github.com/emilythestrangee/tally/backend/internal/tally"
)

const (
	defaultMongoDatabase = "tally_survey"
	usersCollection      = "users"
	responsesCollection  = "surveyresponses"
)

type MongoStore struct {
	client    *mongo.Client
	users     *mongo.Collection
	responses *mongo.Collection

	// change streams and multi-document transactions need a replica set or
	// a sharded cluster
	replicated bool
}

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Timestamp time.Time          `bson:"timestamp"`
}

type responseDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	UserID         string             `bson:"userId"`
	UserName       string             `bson:"userName"`
	QuestionID     string             `bson:"questionId"`
	SelectedOption string             `bson:"selectedOption"`
	Timestamp      time.Time          `bson:"timestamp"`
}

func newResponseDoc(r models.Response, now time.Time) responseDoc {
	return responseDoc{
		ID:             primitive.NewObjectID(),
		UserID:         r.UserID,
		UserName:       r.UserName,
		QuestionID:     r.QuestionID,
		SelectedOption: r.SelectedOption,
		Timestamp:      now,
	}
}

func (d responseDoc) model() models.Response {
	return models.Response{
		ID:             d.ID.Hex(),
		UserID:         d.UserID,
		UserName:       d.UserName,
		QuestionID:     d.QuestionID,
		SelectedOption: d.SelectedOption,
		Timestamp:      d.Timestamp,
	}
}

// NewMongoStore connects to the deployment in uri. The database name comes
// from the uri path and defaults to tally_survey.
func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongodb uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	opts := options.Client().ApplyURI(uri)
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetServerSelectionTimeout(time.Until(deadline))
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:    client,
		users:     db.Collection(usersCollection),
		responses: db.Collection(responsesCollection),
	}

	_, err = s.responses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "questionId", Value: 1}, {Key: "selectedOption", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		log.Printf("⚠️  Could not inspect MongoDB topology: %v", err)
	}
	s.replicated = hello.SetName != "" || hello.Msg == "isdbgrid"
	if !s.replicated {
		log.Println("⚠️  MongoDB is a standalone server, change streams are unavailable")
	}

	return s, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, name string) (models.User, error) {
	doc := userDoc{ID: primitive.NewObjectID(), Name: name, Timestamp: time.Now().UTC()}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return models.User{ID: doc.ID.Hex(), Name: doc.Name, Timestamp: doc.Timestamp}, nil
}

func (s *MongoStore) Insert(ctx context.Context, r models.Response) (models.Response, error) {
	doc := newResponseDoc(r, time.Now().UTC())
	if _, err := s.responses.InsertOne(ctx, doc); err != nil {
		return models.Response{}, fmt.Errorf("insert response: %w", err)
	}
	return doc.model(), nil
}

// InsertMany writes the batch in a transaction when the deployment supports
// it. On a standalone server an ordered insert is used and any partial write
// is deleted again.
func (s *MongoStore) InsertMany(ctx context.Context, rs []models.Response) ([]models.Response, error) {
	if len(rs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, len(rs))
	stored := make([]models.Response, len(rs))
	ids := make([]primitive.ObjectID, len(rs))
	for i, r := range rs {
		doc := newResponseDoc(r, now)
		docs[i] = doc
		ids[i] = doc.ID
		stored[i] = doc.model()
	}

	if s.replicated {
		err := s.client.UseSession(ctx, func(sc mongo.SessionContext) error {
			_, err := sc.WithTransaction(sc, func(txCtx mongo.SessionContext) (interface{}, error) {
				return s.responses.InsertMany(txCtx, docs)
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("insert responses: %w", err)
		}
		return stored, nil
	}

	if _, err := s.responses.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
			if _, derr := s.responses.DeleteMany(context.Background(), filter); derr != nil {
				log.Printf("Error rolling back partial insert: %v", derr)
			}
		}
		return nil, fmt.Errorf("insert responses: %w", err)
	}
	return stored, nil
}

func (s *MongoStore) ListRecent(ctx context.Context, limit int) ([]models.Response, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limitOrDefault(limit)))

	cur, err := s.responses.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	var docs []responseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}

	out := make([]models.Response, len(docs))
	for i, d := range docs {
		out[i] = d.model()
	}
	return out, nil
}

// tallyPipeline groups responses by question and option.
var tallyPipeline = mongo.Pipeline{
	{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: bson.D{
			{Key: "questionId", Value: "$questionId"},
			{Key: "selectedOption", Value: "$selectedOption"},
		}},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
	}}},
	{{Key: "$project", Value: bson.D{
		{Key: "_id", Value: 0},
		{Key: "questionId", Value: "$_id.questionId"},
		{Key: "selectedOption", Value: "$_id.selectedOption"},
		{Key: "count", Value: 1},
	}}},
}

func (s *MongoStore) Tallies(ctx context.Context) (models.Snapshot, error) {
	cur, err := s.responses.Aggregate(ctx, tallyPipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate tallies: %w", err)
	}
	var rows []models.TallyRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode tallies: %w", err)
	}
	return tally.FromRows(rows), nil
}

func (s *MongoStore) Clear(context.Context) error {
	return ErrUnsupportedInDurableMode
}

func (s *MongoStore) Mode() Mode    { return ModeMongo }
func (s *MongoStore) Durable() bool { return true }

func (s *MongoStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["change_streams"] = strconv.FormatBool(s.replicated)
	if n, err := s.responses.EstimatedDocumentCount(ctx); err == nil {
		stats["responses"] = strconv.FormatInt(n, 10)
	}
	return stats
}

func (s *MongoStore) Close() error {
	log.Println("Disconnected from database")
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) CanWatch() bool { return s.replicated }

// Watch follows the responses change stream, resuming after the last seen
// event when the stream breaks.
func (s *MongoStore) Watch(ctx context.Context, fn func(models.Response)) error {
	if !s.replicated {
		return errors.New("change streams require a replica set")
	}

	var resumeToken bson.Raw
	for {
		token, err := s.follow(ctx, resumeToken, fn)
		if token != nil {
			resumeToken = token
		}
		if ctx.Err() != nil {
			return nil
		}
		if historyLost(err) {
			// the token is gone from the oplog; restart from now
			resumeToken = nil
		}
		log.Printf("MongoDB change stream interrupted: %v", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

// changeStreamHistoryLost is the server code for a resume token that has
// fallen off the oplog.
const changeStreamHistoryLost = 286

func historyLost(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(changeStreamHistoryLost)
}

func (s *MongoStore) follow(ctx context.Context, resumeAfter bson.Raw, fn func(models.Response)) (bson.Raw, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	opts := options.ChangeStream()
	if resumeAfter != nil {
		opts.SetResumeAfter(resumeAfter)
	}

	stream, err := s.responses.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("open change stream: %w", err)
	}
	defer stream.Close(context.Background())
	log.Println("📡 MongoDB change stream open")

	var last bson.Raw
	for stream.Next(ctx) {
		var event struct {
			FullDocument responseDoc `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			log.Printf("Error processing change stream: %v", err)
			continue
		}
		last = stream.ResumeToken()
		fn(event.FullDocument.model())
	}
	return last, stream.Err()
}
