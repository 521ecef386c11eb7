// Package changefeed turns MongoDB change streams on tasks, documents and
// expenses into per-user dashmetrics change events.
//
// Delete events only carry the owning user when change-stream pre-images
// are enabled on the collection (see validators.EnablePreImages). Without
// them deletes are filtered out and the next full refresh corrects the drift.
package changefeed

import (
	"context"
	"errors"
	"sync"
	"time"

	documentstore "github.com/sheltrhq/sheltr/internal/app/store/documents"
	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	taskstore "github.com/sheltrhq/sheltr/internal/app/store/tasks"
	"github.com/sheltrhq/sheltr/internal/app/system/bsondecimal"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	eventBuffer = 64
	minBackoff  = 500 * time.Millisecond
	maxBackoff  = 30 * time.Second
)

// Collections are the watched collections.
var Collections = []string{taskstore.Collection, documentstore.Collection, expensestore.Collection}

// Feed opens per-user change streams on a database.
type Feed struct {
	db       *mongo.Database
	registry *bsoncodec.Registry
	logger   *zap.Logger
}

// New creates a Feed.
func New(db *mongo.Database, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{db: db, registry: bsondecimal.Registry(), logger: logger}
}

// Subscribe opens a change stream filtered to userID. The stream is opened
// before Subscribe returns so that an error (for example a standalone server
// without change streams) is reported to the caller. Transient stream errors
// later on are retried from the last resume token.
func (f *Feed) Subscribe(ctx context.Context, userID primitive.ObjectID) (dashmetrics.Subscription, error) {
	cs, err := f.open(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		feed:   f,
		userID: userID,
		events: make(chan dashmetrics.ChangeEvent, eventBuffer),
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.run(ctx, cs)
	return s, nil
}

func (f *Feed) open(ctx context.Context, userID primitive.ObjectID, resume bson.Raw) (*mongo.ChangeStream, error) {
	return f.db.Watch(ctx, pipeline(userID), streamOptions(resume))
}

// streamOptions asks for the stored post-image of each change rather than
// an update lookup: a lookup returns the document as it is when the event
// is read, so two quick updates would both see the second one's result.
func streamOptions(resume bson.Raw) *options.ChangeStreamOptions {
	opts := options.ChangeStream().
		SetFullDocument(options.WhenAvailable).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if resume != nil {
		opts.SetResumeAfter(resume)
	}
	return opts
}

func pipeline(userID primitive.ObjectID) mongo.Pipeline {
	colls := make(bson.A, 0, len(Collections))
	for _, c := range Collections {
		colls = append(colls, c)
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: colls}}},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}}},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "fullDocument.user_id", Value: userID}},
				bson.D{{Key: "fullDocumentBeforeChange.user_id", Value: userID}},
			}},
		}}},
	}
}

type subscription struct {
	feed   *Feed
	userID primitive.ObjectID
	events chan dashmetrics.ChangeEvent
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *subscription) Events() <-chan dashmetrics.ChangeEvent { return s.events }

// Close stops the stream and waits for the reader goroutine to exit.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *subscription) run(ctx context.Context, cs *mongo.ChangeStream) {
	defer s.wg.Done()
	defer close(s.events)

	log := s.feed.logger.With(zap.String("user_id", s.userID.Hex()))
	backoff := minBackoff

	for {
		err := s.drain(ctx, cs)
		resume := cs.ResumeToken()
		_ = cs.Close(context.Background())

		if ctx.Err() != nil {
			return
		}
		log.Warn("change stream interrupted; resuming", zap.Error(err), zap.Duration("backoff", backoff))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)

			next, err := s.feed.open(ctx, s.userID, resume)
			if err == nil {
				cs = next
				backoff = minBackoff
				break
			}
			if ctx.Err() != nil {
				return
			}
			log.Warn("change stream reopen failed", zap.Error(err))
		}
	}
}

// drain forwards events until the stream fails or ctx is done.
func (s *subscription) drain(ctx context.Context, cs *mongo.ChangeStream) error {
	for cs.Next(ctx) {
		ev, ok, err := s.feed.decode(cs.Current)
		if err != nil {
			s.feed.logger.Debug("dropping undecodable change event", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := cs.Err(); err != nil {
		return err
	}
	return errors.New("change stream closed")
}

type rawEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	FullDocument bson.RawValue `bson:"fullDocument"`
	Before       bson.RawValue `bson:"fullDocumentBeforeChange"`
}

// decode maps a raw change document to a ChangeEvent. ok is false for
// events that do not affect the dashboard.
func (f *Feed) decode(raw bson.Raw) (dashmetrics.ChangeEvent, bool, error) {
	var re rawEvent
	if err := bson.UnmarshalWithRegistry(f.registry, raw, &re); err != nil {
		return dashmetrics.ChangeEvent{}, false, err
	}

	var ev dashmetrics.ChangeEvent
	switch re.OperationType {
	case "insert":
		ev.Op = dashmetrics.OpInsert
	case "update", "replace":
		ev.Op = dashmetrics.OpUpdate
	case "delete":
		ev.Op = dashmetrics.OpDelete
	default:
		return ev, false, nil
	}

	switch re.NS.Coll {
	case taskstore.Collection:
		ev.Table = dashmetrics.TableTasks
		oldT, err := f.task(re.Before)
		if err != nil {
			return ev, false, err
		}
		newT, err := f.task(re.FullDocument)
		if err != nil {
			return ev, false, err
		}
		ev.OldTask, ev.NewTask = oldT, newT
	case documentstore.Collection:
		ev.Table = dashmetrics.TableDocuments
	case expensestore.Collection:
		ev.Table = dashmetrics.TableExpenses
		oldE, err := f.expense(re.Before)
		if err != nil {
			return ev, false, err
		}
		newE, err := f.expense(re.FullDocument)
		if err != nil {
			return ev, false, err
		}
		ev.OldExpense, ev.NewExpense = oldE, newE
	default:
		return ev, false, nil
	}
	return ev, true, nil
}

func (f *Feed) task(rv bson.RawValue) (*dashmetrics.TaskRow, error) {
	if rv.Type != bsontype.EmbeddedDocument {
		return nil, nil
	}
	var t models.Task
	if err := bson.UnmarshalWithRegistry(f.registry, rv.Document(), &t); err != nil {
		return nil, err
	}
	row := metricsstore.TaskRow(t)
	return &row, nil
}

func (f *Feed) expense(rv bson.RawValue) (*dashmetrics.ExpenseRow, error) {
	if rv.Type != bsontype.EmbeddedDocument {
		return nil, nil
	}
	var e models.Expense
	if err := bson.UnmarshalWithRegistry(f.registry, rv.Document(), &e); err != nil {
		return nil, err
	}
	row := metricsstore.ExpenseRow(e)
	return &row, nil
}
