package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

var (
	_ app.Store             = (*Store)(nil)
	_ app.LeaderboardLoader = (*Store)(nil)
)

const unknownCommitResult = "UnknownTransactionCommitResult"

// Store implements app.Store on MongoDB. Scoring uses multi-document
// transactions, so the deployment must be a replica set.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	users        *mongo.Collection
	competitions *mongo.Collection
	riddles      *mongo.Collection
	answers      *mongo.Collection
	scores       *mongo.Collection
}

// Connect dials uri and returns a store over database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewStore(client, database), nil
}

func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:       client,
		db:           db,
		users:        db.Collection("users"),
		competitions: db.Collection("competitions"),
		riddles:      db.Collection("riddles"),
		answers:      db.Collection("answers"),
		scores:       db.Collection("competition_scores"),
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the queries below rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.answers: {
			{Keys: bson.D{{Key: "riddleId", Value: 1}, {Key: "submittedAt", Value: 1}, {Key: "_id", Value: 1}}},
			// Not unique: extra submissions are flagged as duplicates at scoring.
			{Keys: bson.D{{Key: "riddleId", Value: 1}, {Key: "userId", Value: 1}}},
		},
		s.riddles: {
			{Keys: bson.D{{Key: "pointsAssigned", Value: 1}, {Key: "endsAt", Value: 1}}},
		},
		s.scores: {
			{Keys: bson.D{{Key: "competitionId", Value: 1}, {Key: "points", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	var res struct {
		LocalTime time.Time `bson:"localTime"`
	}
	if err := s.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&res); err != nil {
		return time.Time{}, err
	}
	return res.LocalTime, nil
}

func (s *Store) Riddle(ctx context.Context, id string) (domain.Riddle, error) {
	var doc riddleDoc
	err := s.riddles.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Riddle{}, domain.ErrRiddleNotFound
	}
	if err != nil {
		return domain.Riddle{}, fmt.Errorf("find riddle: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) Competition(ctx context.Context, id string) (domain.Competition, error) {
	var doc competitionDoc
	err := s.competitions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Competition{}, domain.ErrCompetitionNotFound
	}
	if err != nil {
		return domain.Competition{}, fmt.Errorf("find competition: %w", err)
	}
	return doc.toDomain(), nil
}

// User returns a user with its global point total.
func (s *Store) User(ctx context.Context, id string) (domain.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) UnscoredRiddles(ctx context.Context, endedBy time.Time) ([]domain.Riddle, error) {
	opts := options.Find().SetSort(bson.D{{Key: "endsAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.riddles.Find(ctx, bson.M{
		"pointsAssigned": false,
		"endsAt":         bson.M{"$lte": endedBy},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("find unscored riddles: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []riddleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Riddle, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) HasAnswered(ctx context.Context, riddleID, userID string) (bool, error) {
	n, err := s.answers.CountDocuments(ctx, bson.M{"riddleId": riddleID, "userId": userID}, options.Count().SetLimit(1))
	return n > 0, err
}

// InsertAnswer claims the riddle the same way LockRiddle does, so an insert and
// a scoring transaction on one riddle write-conflict and one of them retries.
// The window is checked against the server clock inside the claim.
func (s *Store) InsertAnswer(ctx context.Context, answer domain.Answer) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := s.riddles.UpdateOne(sc,
			bson.M{
				"_id":            answer.RiddleID,
				"pointsAssigned": false,
				"$expr":          bson.M{"$gt": bson.A{"$endsAt", "$$NOW"}},
			},
			bson.M{"$inc": bson.M{"lockVersion": 1}},
		)
		if err != nil {
			return nil, fmt.Errorf("claim riddle: %w", err)
		}
		if res.MatchedCount == 0 {
			if _, err := s.Riddle(sc, answer.RiddleID); err != nil {
				return nil, err
			}
			return nil, domain.ErrRiddleClosed
		}
		_, err = s.answers.InsertOne(sc, newAnswerDoc(answer))
		return nil, err
	})
	return err
}

func (s *Store) UserAnswers(ctx context.Context, riddleID, userID string) ([]domain.Answer, error) {
	return findAnswers(ctx, s.answers, bson.M{"riddleId": riddleID, "userId": userID})
}

func (s *Store) JoinCompetition(ctx context.Context, competitionID, userID string) error {
	if _, err := s.Competition(ctx, competitionID); err != nil {
		return err
	}
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrUserNotFound
		}
		return err
	}

	_, err := s.scores.InsertOne(ctx, scoreDoc{
		ID:            scoreID(competitionID, userID),
		CompetitionID: competitionID,
		UserID:        userID,
	})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyJoined
	}
	if err != nil {
		return err
	}
	_, err = s.competitions.UpdateOne(ctx, bson.M{"_id": competitionID}, bson.M{"$inc": bson.M{"participants": 1}})
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	joinedAt := user.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{
			"$set":         bson.M{"displayName": user.DisplayName},
			"$setOnInsert": bson.M{"points": user.Points, "joinedAt": joinedAt},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) CreateCompetition(ctx context.Context, competition domain.Competition) error {
	doc := newCompetitionDoc(competition)
	_, err := s.competitions.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{
			"$set": bson.M{
				"name":     doc.Name,
				"startsAt": doc.StartsAt,
				"endsAt":   doc.EndsAt,
				"points":   doc.Points,
				"bonus":    doc.Bonus,
			},
			"$setOnInsert": bson.M{"participants": 0},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) CreateRiddle(ctx context.Context, riddle domain.Riddle) error {
	if riddle.CompetitionID != "" {
		if _, err := s.Competition(ctx, riddle.CompetitionID); err != nil {
			return err
		}
	}
	createdAt := riddle.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	// Scoring fields are never overwritten by authoring.
	_, err := s.riddles.UpdateOne(ctx,
		bson.M{"_id": riddle.ID},
		bson.M{
			"$set": bson.M{
				"title":         riddle.Title,
				"question":      riddle.Question,
				"solution":      riddle.Solution,
				"startsAt":      riddle.StartsAt,
				"endsAt":        riddle.EndsAt,
				"competitionId": riddle.CompetitionID,
				"override":      newOverrideDoc(riddle.Override),
			},
			"$setOnInsert": bson.M{
				"createdAt":      createdAt,
				"pointsAssigned": false,
				"firstSolver":    nil,
				"correctCount":   nil,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) LoadLeaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	if _, err := s.Competition(ctx, competitionID); err != nil {
		return domain.Leaderboard{}, err
	}
	now, err := s.ServerTime(ctx)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	cursor, err := s.scores.Find(ctx, bson.M{"competitionId": competitionID})
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("find scores: %w", err)
	}
	var scores []scoreDoc
	if err := cursor.All(ctx, &scores); err != nil {
		return domain.Leaderboard{}, err
	}

	ids := make([]string, 0, len(scores))
	for _, sc := range scores {
		ids = append(ids, sc.UserID)
	}
	names := make(map[string]string, len(ids))
	if len(ids) > 0 {
		cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
			options.Find().SetProjection(bson.M{"displayName": 1}))
		if err != nil {
			return domain.Leaderboard{}, fmt.Errorf("find users: %w", err)
		}
		var users []userDoc
		if err := cursor.All(ctx, &users); err != nil {
			return domain.Leaderboard{}, err
		}
		for _, u := range users {
			names[u.ID] = u.DisplayName
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(scores))
	for _, sc := range scores {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      sc.UserID,
			DisplayName: names[sc.UserID],
			Points:      sc.Points,
		})
	}
	return domain.Leaderboard{
		CompetitionID: competitionID,
		Entries:       app.RankLeaderboard(entries),
		UpdatedAt:     now,
	}, nil
}

// Transaction runs fn in a multi-document transaction. On a write conflict the
// driver retries fn from the start.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx app.ScoringTx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &scoringTx{store: s})
	})
	if err == nil {
		return nil
	}
	// The commit may have applied on the server.
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(unknownCommitResult) {
		return err
	}
	return domain.RolledBack(err)
}

type scoringTx struct {
	store *Store
}

// LockRiddle bumps a counter on the riddle so that two transactions scoring it
// write-conflict instead of both reading pointsAssigned=false.
func (t *scoringTx) LockRiddle(ctx context.Context, id string) (domain.Riddle, error) {
	var doc riddleDoc
	err := t.store.riddles.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"lockVersion": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Riddle{}, domain.ErrRiddleNotFound
	}
	if err != nil {
		return domain.Riddle{}, fmt.Errorf("lock riddle: %w", err)
	}
	return doc.toDomain(), nil
}

func (t *scoringTx) Answers(ctx context.Context, riddleID string) ([]domain.Answer, error) {
	return findAnswers(ctx, t.store.answers, bson.M{"riddleId": riddleID})
}

func (t *scoringTx) SaveAnswerScore(ctx context.Context, score domain.AnswerScore) error {
	_, err := t.store.answers.UpdateOne(ctx, bson.M{"_id": score.AnswerID}, bson.M{"$set": bson.M{
		"points":    score.Points,
		"bonus":     score.Bonus,
		"isCorrect": score.IsCorrect,
		"duplicate": score.Duplicate,
	}})
	return err
}

func (t *scoringTx) CreditCompetition(ctx context.Context, competitionID, userID string, points int) (bool, error) {
	res, err := t.store.scores.UpdateOne(ctx,
		bson.M{"_id": scoreID(competitionID, userID)},
		bson.M{"$inc": bson.M{"points": points}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (t *scoringTx) CreditUser(ctx context.Context, userID string, points int) (bool, error) {
	res, err := t.store.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$inc": bson.M{"points": points}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (t *scoringTx) MarkScored(ctx context.Context, riddleID string, result domain.RiddleResult) error {
	res, err := t.store.riddles.UpdateOne(ctx,
		bson.M{"_id": riddleID, "pointsAssigned": false},
		bson.M{"$set": bson.M{
			"pointsAssigned": true,
			"firstSolver":    result.FirstSolver,
			"correctCount":   result.CorrectCount,
			"processedAt":    result.ProcessedAt,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrAlreadyScored
	}
	return nil
}

func findAnswers(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]domain.Answer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submittedAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find answers: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []answerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Answer, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
