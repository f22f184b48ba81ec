package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nsinhame/wallhaven-engine/internal/engine"
	"github.com/nsinhame/wallhaven-engine/internal/types"
)

// MongoGateway is the Gateway implementation over MongoDB (see DESIGN.md
// for why Mongo stands in for the original Firestore document store).
type MongoGateway struct {
	client     *mongo.Client
	wallpapers *mongo.Collection
	cursors    *mongo.Collection
	logger     *slog.Logger
}

// NewMongoGateway connects to uri/database and ensures the composite and
// single-field indexes the store needs (SPEC_FULL.md 4.9, "log configured
// composite indexes that the store needs").
func NewMongoGateway(ctx context.Context, uri, database string, logger *slog.Logger) (*MongoGateway, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(database)
	g := &MongoGateway{
		client:     client,
		wallpapers: db.Collection("wallpapers"),
		cursors:    db.Collection("cursors"),
		logger:     logger.With("component", "store_gateway"),
	}

	if err := g.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	return g, nil
}

func (g *MongoGateway) ensureIndexes(ctx context.Context) error {
	wallpaperIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "wallpaper_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "sha256", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "category", Value: 1}, {Key: "status", Value: 1}},
		},
	}
	if _, err := g.wallpapers.Indexes().CreateMany(ctx, wallpaperIdx); err != nil {
		return fmt.Errorf("wallpapers indexes: %w", err)
	}

	cursorIdx := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "search_term", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := g.cursors.Indexes().CreateMany(ctx, cursorIdx); err != nil {
		return fmt.Errorf("cursors indexes: %w", err)
	}

	g.logger.Info("store indexes ready",
		"wallpapers", "unique(wallpaper_id), sha256, composite(category,status)",
		"cursors", "unique(category,search_term)",
	)
	return nil
}

// retryFor runs fn with the operation's quota-aware backoff schedule:
// (60s, 120s, 240s) for the large reads (FindByHash, ScanMetadata) and
// (5s, 10s, 20s) for every other operation, up to 3 retries after the initial attempt (SPEC_FULL.md 4.5: a
// delay, 2x delay, 4x delay schedule needs 4 total tries to reach the
// last tier). Non-quota errors propagate immediately without retry.
func retryFor(ctx context.Context, initialDelay time.Duration, fn func() error) error {
	return engine.Do(ctx, 4, initialDelay, isQuotaError, fn)
}

func isQuotaError(err error) bool {
	return errors.Is(err, types.ErrQuotaExceeded)
}

func (g *MongoGateway) GetWallpaper(ctx context.Context, id string) (*types.Wallpaper, error) {
	var w types.Wallpaper
	err := retryFor(ctx, 5*time.Second, func() error {
		findCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		err := g.wallpapers.FindOne(findCtx, bson.M{"wallpaper_id": id}).Decode(&w)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.ErrNotFound
		}
		return wrapMongoErr(err)
	})
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (g *MongoGateway) UpsertNew(ctx context.Context, w *types.Wallpaper) error {
	return retryFor(ctx, 5*time.Second, func() error {
		insertCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		_, err := g.wallpapers.InsertOne(insertCtx, w)
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert %s: %w", w.WallpaperID, types.ErrAlreadyExists)
		}
		return wrapMongoErr(err)
	})
}

func (g *MongoGateway) QueryPending(ctx context.Context, category string, limit int) ([]*types.Wallpaper, error) {
	var out []*types.Wallpaper
	err := retryFor(ctx, 5*time.Second, func() error {
		queryCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		cur, err := g.wallpapers.Find(queryCtx,
			bson.M{"category": category, "status": types.StatusLinkAdded},
			options.Find().SetLimit(int64(limit)),
		)
		if err != nil {
			return wrapMongoErr(err)
		}
		defer cur.Close(queryCtx)

		out = nil
		for cur.Next(queryCtx) {
			var w types.Wallpaper
			if err := cur.Decode(&w); err != nil {
				return fmt.Errorf("decode pending row: %w", err)
			}
			out = append(out, &w)
		}
		return wrapMongoErr(cur.Err())
	})
	return out, err
}

func (g *MongoGateway) UpdateStatus(ctx context.Context, update types.StatusUpdate) error {
	patch := statusPatch(update)
	return retryFor(ctx, 5*time.Second, func() error {
		updateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		res, err := g.wallpapers.UpdateOne(updateCtx,
			bson.M{"wallpaper_id": update.WallpaperID()},
			bson.M{"$set": patch},
		)
		if err != nil {
			return wrapMongoErr(err)
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("update status %s: %w", update.WallpaperID(), types.ErrNotFound)
		}
		return nil
	})
}

func statusPatch(update types.StatusUpdate) bson.M {
	switch u := update.(type) {
	case types.PostedUpdate:
		return bson.M{"status": types.StatusPosted, "sha256": u.SHA256, "tg_response": u.Telegram}
	case types.SkippedUpdate:
		return bson.M{"status": types.StatusSkipped, "failure_reason": u.Reason, "matched_id": u.MatchedID}
	case types.FailedUpdate:
		patch := bson.M{"status": types.StatusFailed, "failure_reason": u.Reason}
		if u.SHA256 != "" {
			patch["sha256"] = u.SHA256
		}
		if u.Telegram != nil {
			patch["tg_response"] = u.Telegram
		}
		return patch
	default:
		return bson.M{}
	}
}

func (g *MongoGateway) GetCursor(ctx context.Context, category, term string) (*types.Cursor, error) {
	var c types.Cursor
	err := retryFor(ctx, 5*time.Second, func() error {
		findCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		err := g.cursors.FindOne(findCtx, bson.M{"category": category, "search_term": term}).Decode(&c)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.ErrNotFound
		}
		return wrapMongoErr(err)
	})
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *MongoGateway) SetCursor(ctx context.Context, c *types.Cursor) error {
	return retryFor(ctx, 5*time.Second, func() error {
		updateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		_, err := g.cursors.UpdateOne(updateCtx,
			bson.M{"category": c.Category, "search_term": c.SearchTerm},
			bson.M{"$set": c},
			options.Update().SetUpsert(true),
		)
		return wrapMongoErr(err)
	})
}

// ScanMetadata iterates every stored wallpaper's id/category/term/created_at
// for cold-start MetadataCache rehydration (SPEC_FULL.md 4.2, 4.9).
func (g *MongoGateway) ScanMetadata(ctx context.Context, fn func(id, category, term string, createdAt int64) error) error {
	return retryFor(ctx, 60*time.Second, func() error {
		scanCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		projection := bson.M{"wallpaper_id": 1, "category": 1, "search_term": 1, "created_at": 1}
		cur, err := g.wallpapers.Find(scanCtx, bson.M{}, options.Find().SetProjection(projection))
		if err != nil {
			return wrapMongoErr(err)
		}
		defer cur.Close(scanCtx)

		for cur.Next(scanCtx) {
			var row struct {
				WallpaperID string `bson:"wallpaper_id"`
				Category    string `bson:"category"`
				SearchTerm  string `bson:"search_term"`
				CreatedAt   int64  `bson:"created_at"`
			}
			if err := cur.Decode(&row); err != nil {
				return fmt.Errorf("decode metadata row: %w", err)
			}
			if err := fn(row.WallpaperID, row.Category, row.SearchTerm, row.CreatedAt); err != nil {
				return err
			}
		}
		return wrapMongoErr(cur.Err())
	})
}

// FindByHash is the dedup-index read the Pipeline falls back to on a
// HashCache miss (SPEC_FULL.md 4.8, step "Dedup"). It uses the 60s
// large-index read backoff schedule.
func (g *MongoGateway) FindByHash(ctx context.Context, sha256 string) (*types.Wallpaper, error) {
	var w types.Wallpaper
	err := retryFor(ctx, 60*time.Second, func() error {
		findCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		err := g.wallpapers.FindOne(findCtx, bson.M{"sha256": sha256}).Decode(&w)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.ErrNotFound
		}
		return wrapMongoErr(err)
	})
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (g *MongoGateway) Close(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return g.client.Disconnect(closeCtx)
}

// wrapMongoErr marks transient-looking driver errors as ErrQuotaExceeded
// so retryFor's shouldRetry predicate can recognize them, leaving
// everything else (malformed query, auth failure) to propagate as-is.
func wrapMongoErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrAlreadyExists) {
		return err
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Code == 16500 /* QueryOverDiskQuota */ || cmdErr.Code == 301 /* LockTimeout */) {
		return fmt.Errorf("%w: %v", types.ErrQuotaExceeded, err)
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%w: %v", types.ErrQuotaExceeded, err)
	}
	return err
}
