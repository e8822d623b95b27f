package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainreassignment "slotkeeper/internal/domain/reassignment"
	domainrecurrence "slotkeeper/internal/domain/recurrence"
	domainreservation "slotkeeper/internal/domain/reservation"
	domainresource "slotkeeper/internal/domain/resource"
	"slotkeeper/internal/domain/shared/window"
	domainwaitlist "slotkeeper/internal/domain/waitlist"
)

// save upserts doc guarded by the version the aggregate was loaded at. A
// stored document with another version makes the upsert collide on _id.
func save(ctx context.Context, col *mongo.Collection, id string, version int64, doc any, stale error) error {
	filter := bson.M{"_id": id, "version": version}
	res, err := col.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return stale
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return stale
	}
	return nil
}

func findOne[D any](ctx context.Context, col *mongo.Collection, id string, notFound error) (D, error) {
	var doc D
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return doc, notFound
		}
		return doc, err
	}
	return doc, nil
}

// findAll decodes every match ordered by _id.
func findAll[D any](ctx context.Context, col *mongo.Collection, filter bson.M) ([]D, error) {
	cur, err := col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func overlapFilter(w window.TimeWindow) bson.M {
	return bson.M{"start": bson.M{"$lt": millis(w.End)}, "end": bson.M{"$gt": millis(w.Start)}}
}

func statusFilter[S ~string](statuses []S) any {
	if len(statuses) == 1 {
		return string(statuses[0])
	}
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	return bson.M{"$in": values}
}

type ResourceRepository struct {
	col *mongo.Collection
}

func NewResourceRepository(db *mongo.Database) *ResourceRepository {
	return &ResourceRepository{col: db.Collection(resourcesCollection)}
}

func (r *ResourceRepository) ByID(ctx context.Context, id domainresource.ResourceID) (*domainresource.Resource, error) {
	doc, err := findOne[resourceDocument](ctx, r.col, string(id), domainresource.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ResourceRepository) Save(ctx context.Context, res *domainresource.Resource) error {
	doc := newResourceDocument(res)
	doc.Version = res.Version + 1
	if err := save(ctx, r.col, doc.ID, res.Version, doc, domainresource.ErrConcurrentUpdate); err != nil {
		return err
	}
	res.Version = doc.Version
	return nil
}

func (r *ResourceRepository) List(ctx context.Context, filter domainresource.Filter) ([]*domainresource.Resource, error) {
	q := bson.M{}
	if filter.Type != "" {
		q["type"] = filter.Type
	}
	if filter.Status != "" {
		q["status"] = string(filter.Status)
	}
	docs, err := findAll[resourceDocument](ctx, r.col, q)
	if err != nil {
		return nil, err
	}
	out := make([]*domainresource.Resource, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type ReservationRepository struct {
	col *mongo.Collection
}

func NewReservationRepository(db *mongo.Database) *ReservationRepository {
	return &ReservationRepository{col: db.Collection(reservationsCollection)}
}

func (r *ReservationRepository) ByID(ctx context.Context, id domainreservation.ReservationID) (*domainreservation.Reservation, error) {
	doc, err := findOne[reservationDocument](ctx, r.col, string(id), domainreservation.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ReservationRepository) Save(ctx context.Context, res *domainreservation.Reservation) error {
	doc := newReservationDocument(res)
	doc.Version = res.Version + 1
	if err := save(ctx, r.col, doc.ID, res.Version, doc, domainreservation.ErrConcurrentUpdate); err != nil {
		return err
	}
	res.Version = doc.Version
	return nil
}

func (r *ReservationRepository) FindOverlapping(ctx context.Context, resourceID domainresource.ResourceID, w window.TimeWindow) ([]*domainreservation.Reservation, error) {
	q := overlapFilter(w)
	q["resource_id"] = string(resourceID)
	q["status"] = statusFilter([]domainreservation.Status{domainreservation.StatusPending, domainreservation.StatusConfirmed})
	return r.list(ctx, q)
}

func (r *ReservationRepository) ListByResource(ctx context.Context, resourceID domainresource.ResourceID, w window.TimeWindow) ([]*domainreservation.Reservation, error) {
	q := overlapFilter(w)
	q["resource_id"] = string(resourceID)
	return r.list(ctx, q)
}

func (r *ReservationRepository) ListBySeries(ctx context.Context, seriesID string) ([]*domainreservation.Reservation, error) {
	return r.list(ctx, bson.M{"series_id": seriesID})
}

func (r *ReservationRepository) ListByStatus(ctx context.Context, status domainreservation.Status, endedBefore time.Time) ([]*domainreservation.Reservation, error) {
	q := bson.M{"status": string(status)}
	if !endedBefore.IsZero() {
		q["end"] = bson.M{"$lt": millis(endedBefore)}
	}
	return r.list(ctx, q)
}

func (r *ReservationRepository) list(ctx context.Context, q bson.M) ([]*domainreservation.Reservation, error) {
	docs, err := findAll[reservationDocument](ctx, r.col, q)
	if err != nil {
		return nil, err
	}
	out := make([]*domainreservation.Reservation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type SeriesRepository struct {
	col *mongo.Collection
}

func NewSeriesRepository(db *mongo.Database) *SeriesRepository {
	return &SeriesRepository{col: db.Collection(seriesCollection)}
}

func (r *SeriesRepository) ByID(ctx context.Context, id domainrecurrence.SeriesID) (*domainrecurrence.Series, error) {
	doc, err := findOne[seriesDocument](ctx, r.col, string(id), domainrecurrence.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *SeriesRepository) Save(ctx context.Context, s *domainrecurrence.Series) error {
	doc := newSeriesDocument(s)
	doc.Version = s.Version + 1
	if err := save(ctx, r.col, doc.ID, s.Version, doc, domainrecurrence.ErrConcurrentUpdate); err != nil {
		return err
	}
	s.Version = doc.Version
	return nil
}

func (r *SeriesRepository) ListByStatus(ctx context.Context, status domainrecurrence.Status) ([]*domainrecurrence.Series, error) {
	return r.list(ctx, bson.M{"status": string(status)})
}

func (r *SeriesRepository) ListByResource(ctx context.Context, resourceID domainresource.ResourceID) ([]*domainrecurrence.Series, error) {
	return r.list(ctx, bson.M{"resource_id": string(resourceID)})
}

func (r *SeriesRepository) list(ctx context.Context, q bson.M) ([]*domainrecurrence.Series, error) {
	docs, err := findAll[seriesDocument](ctx, r.col, q)
	if err != nil {
		return nil, err
	}
	out := make([]*domainrecurrence.Series, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type WaitlistRepository struct {
	col *mongo.Collection
}

func NewWaitlistRepository(db *mongo.Database) *WaitlistRepository {
	return &WaitlistRepository{col: db.Collection(waitlistCollection)}
}

func (r *WaitlistRepository) ByID(ctx context.Context, id domainwaitlist.EntryID) (*domainwaitlist.Entry, error) {
	doc, err := findOne[entryDocument](ctx, r.col, string(id), domainwaitlist.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *WaitlistRepository) Save(ctx context.Context, e *domainwaitlist.Entry) error {
	doc := newEntryDocument(e)
	doc.Version = e.Version + 1
	if err := save(ctx, r.col, doc.ID, e.Version, doc, domainwaitlist.ErrConcurrentUpdate); err != nil {
		return err
	}
	e.Version = doc.Version
	return nil
}

func (r *WaitlistRepository) ListByResource(ctx context.Context, resourceID domainresource.ResourceID, statuses ...domainwaitlist.Status) ([]*domainwaitlist.Entry, error) {
	q := bson.M{"resource_id": string(resourceID)}
	if len(statuses) > 0 {
		q["status"] = statusFilter(statuses)
	}
	return r.list(ctx, q)
}

func (r *WaitlistRepository) ListByStatus(ctx context.Context, statuses ...domainwaitlist.Status) ([]*domainwaitlist.Entry, error) {
	q := bson.M{}
	if len(statuses) > 0 {
		q["status"] = statusFilter(statuses)
	}
	return r.list(ctx, q)
}

func (r *WaitlistRepository) list(ctx context.Context, q bson.M) ([]*domainwaitlist.Entry, error) {
	docs, err := findAll[entryDocument](ctx, r.col, q)
	if err != nil {
		return nil, err
	}
	out := make([]*domainwaitlist.Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type ReassignmentRepository struct {
	col *mongo.Collection
}

func NewReassignmentRepository(db *mongo.Database) *ReassignmentRepository {
	return &ReassignmentRepository{col: db.Collection(reassignmentsCollection)}
}

func (r *ReassignmentRepository) ByID(ctx context.Context, id domainreassignment.RequestID) (*domainreassignment.Request, error) {
	doc, err := findOne[requestDocument](ctx, r.col, string(id), domainreassignment.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ReassignmentRepository) Save(ctx context.Context, req *domainreassignment.Request) error {
	doc := newRequestDocument(req)
	doc.Version = req.Version + 1
	if err := save(ctx, r.col, doc.ID, req.Version, doc, domainreassignment.ErrConcurrentUpdate); err != nil {
		return err
	}
	req.Version = doc.Version
	return nil
}

func (r *ReassignmentRepository) ListByStatus(ctx context.Context, status domainreassignment.Status) ([]*domainreassignment.Request, error) {
	return r.list(ctx, bson.M{"status": string(status)})
}

func (r *ReassignmentRepository) ListByReservation(ctx context.Context, id domainreservation.ReservationID) ([]*domainreassignment.Request, error) {
	return r.list(ctx, bson.M{"reservation_id": string(id)})
}

func (r *ReassignmentRepository) list(ctx context.Context, q bson.M) ([]*domainreassignment.Request, error) {
	docs, err := findAll[requestDocument](ctx, r.col, q)
	if err != nil {
		return nil, err
	}
	out := make([]*domainreassignment.Request, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

var (
	_ domainresource.Repository     = (*ResourceRepository)(nil)
	_ domainreservation.Repository  = (*ReservationRepository)(nil)
	_ domainrecurrence.Repository   = (*SeriesRepository)(nil)
	_ domainwaitlist.Repository     = (*WaitlistRepository)(nil)
	_ domainreassignment.Repository = (*ReassignmentRepository)(nil)
)
