package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/mongodb"
)

type addressDoc struct {
	Line1 string `bson:"line1"`
	Line2 string `bson:"line2"`
}

type doctorDoc struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty"`
	Name        string              `bson:"name"`
	Email       string              `bson:"email"`
	Password    string              `bson:"password"`
	Image       string              `bson:"image"`
	Specialty   string              `bson:"specialty"`
	Degree      string              `bson:"degree"`
	Experience  string              `bson:"experience"`
	About       string              `bson:"about"`
	Fees        float64             `bson:"fees"`
	Address     addressDoc          `bson:"address"`
	Available   bool                `bson:"available"`
	Date        int64               `bson:"date"`
	SlotsBooked map[string][]string `bson:"slots_booked"`
}

func toDoctorDoc(d *Doctor) doctorDoc {
	slots := map[string][]string(d.SlotsBooked)
	if slots == nil {
		slots = map[string][]string{}
	}
	return doctorDoc{
		Name: d.Name, Email: d.Email, Password: d.PasswordHash, Image: d.Image,
		Specialty: d.Specialty, Degree: d.Degree, Experience: d.Experience, About: d.About,
		Fees: d.Fees, Address: addressDoc{Line1: d.Address.Line1, Line2: d.Address.Line2},
		Available: d.Available, Date: d.Date, SlotsBooked: slots,
	}
}

func (doc *doctorDoc) toDoctor() *Doctor {
	slots := Ledger(doc.SlotsBooked)
	if slots == nil {
		slots = Ledger{}
	}
	return &Doctor{
		ID: doc.ID.Hex(), Name: doc.Name, Email: doc.Email, PasswordHash: doc.Password,
		Image: doc.Image, Specialty: doc.Specialty, Degree: doc.Degree, Experience: doc.Experience,
		About: doc.About, Fees: doc.Fees, Address: Address{Line1: doc.Address.Line1, Line2: doc.Address.Line2},
		Available: doc.Available, Date: doc.Date, SlotsBooked: slots,
	}
}

type storeMongo struct {
	coll *mongo.Collection
}

// NewStoreMongo returns a Store over the doctors collection.
func NewStoreMongo(database *mongo.Database) Store {
	return &storeMongo{coll: database.Collection(mongodb.DoctorsCollection)}
}

// ledgerField is the dotted path of one date entry. Date keys are digits and
// underscores, so they cannot smuggle operators or nested paths.
func ledgerField(date string) (string, error) {
	if date == "" || strings.ContainsAny(date, ".$") {
		return "", apperr.Validation("invalid slot date %q", date)
	}
	return "slots_booked." + date, nil
}

func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func (r *storeMongo) Create(ctx context.Context, d *Doctor) error {
	doc := toDoctorDoc(d)
	if oid, ok := objectID(d.ID); ok {
		doc.ID = oid
	} else {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert doctor: %w", err)
	}
	d.ID = doc.ID.Hex()
	d.SlotsBooked = Ledger(doc.SlotsBooked)
	return nil
}

func (r *storeMongo) findOne(ctx context.Context, filter bson.M) (*Doctor, error) {
	var doc doctorDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find doctor: %w", err)
	}
	return doc.toDoctor(), nil
}

func (r *storeMongo) GetByID(ctx context.Context, id string) (*Doctor, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *storeMongo) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *storeMongo) List(ctx context.Context) ([]*Doctor, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Doctor
	for cur.Next(ctx) {
		var doc doctorDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode doctor: %w", err)
		}
		items = append(items, doc.toDoctor())
	}
	return items, cur.Err()
}

func (r *storeMongo) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) error {
	oid, ok := objectID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"fees":      p.Fees,
		"address":   addressDoc{Line1: p.Address.Line1, Line2: p.Address.Line2},
		"about":     p.About,
		"available": p.Available,
	}})
	if err != nil {
		return fmt.Errorf("update doctor profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storeMongo) ToggleAvailability(ctx context.Context, id string) (bool, error) {
	oid, ok := objectID(id)
	if !ok {
		return false, ErrNotFound
	}
	flip := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "available", Value: bson.D{{Key: "$not", Value: bson.A{"$available"}}}}}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"available": 1})

	var out struct {
		Available bool `bson:"available"`
	}
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, flip, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle availability: %w", err)
	}
	return out.Available, nil
}

func (r *storeMongo) Count(ctx context.Context) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count doctors: %w", err)
	}
	return int(n), nil
}

// ReserveSlot pushes the time only if the array under the date does not
// already hold it. MongoDB applies filter and update atomically per document.
func (r *storeMongo) ReserveSlot(ctx context.Context, doctorID, date, time string) error {
	oid, ok := objectID(doctorID)
	if !ok {
		return ErrNotFound
	}
	field, err := ledgerField(date)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "available": true, field: bson.M{"$ne": time}},
		bson.M{"$push": bson.M{field: time}})
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	var state struct {
		Available bool `bson:"available"`
	}
	err = r.coll.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"available": 1})).Decode(&state)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("reserve slot: %w", err)
	case !state.Available:
		return ErrUnavailable
	default:
		return ErrSlotUnavailable
	}
}

func (r *storeMongo) ReleaseSlot(ctx context.Context, doctorID, date, time string) error {
	oid, ok := objectID(doctorID)
	if !ok {
		return ErrNotFound
	}
	field, err := ledgerField(date)
	if err != nil {
		return err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, field: bson.M{"$exists": true}},
		bson.M{"$pull": bson.M{field: time}})
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
