package appointment

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/domain/patient"
	"github.com/medibook/medibook/internal/platform/mongodb"
	"github.com/medibook/medibook/pkg/pagination"
)

type addressDoc struct {
	Line1 string `bson:"line1"`
	Line2 string `bson:"line2"`
}

type userSnapshotDoc struct {
	ID      string     `bson:"_id"`
	Name    string     `bson:"name"`
	Email   string     `bson:"email"`
	Image   string     `bson:"image"`
	Phone   string     `bson:"phone"`
	Address addressDoc `bson:"address"`
	Gender  string     `bson:"gender"`
	DOB     string     `bson:"dob"`
}

type doctorSnapshotDoc struct {
	ID         string     `bson:"_id"`
	Name       string     `bson:"name"`
	Email      string     `bson:"email"`
	Image      string     `bson:"image"`
	Specialty  string     `bson:"specialty"`
	Degree     string     `bson:"degree"`
	Experience string     `bson:"experience"`
	About      string     `bson:"about"`
	Fees       float64    `bson:"fees"`
	Address    addressDoc `bson:"address"`
}

// appointmentDoc mirrors the collection layout: camelCase fields with the
// patient and doctor snapshots embedded.
type appointmentDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"userId"`
	DocID       string             `bson:"docId"`
	SlotDate    string             `bson:"slotDate"`
	SlotTime    string             `bson:"slotTime"`
	UserData    userSnapshotDoc    `bson:"userData"`
	DocData     doctorSnapshotDoc  `bson:"docData"`
	Amount      float64            `bson:"amount"`
	Date        int64              `bson:"date"`
	Cancelled   bool               `bson:"cancelled"`
	Payment     bool               `bson:"payment"`
	IsCompleted bool               `bson:"isCompleted"`
}

func toDoc(a *Appointment) appointmentDoc {
	u, d := a.UserData, a.DocData
	return appointmentDoc{
		UserID:   a.UserID,
		DocID:    a.DocID,
		SlotDate: a.SlotDate,
		SlotTime: a.SlotTime,
		UserData: userSnapshotDoc{
			ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image, Phone: u.Phone,
			Address: addressDoc(u.Address), Gender: u.Gender, DOB: u.DOB,
		},
		DocData: doctorSnapshotDoc{
			ID: d.ID, Name: d.Name, Email: d.Email, Image: d.Image, Specialty: d.Specialty,
			Degree: d.Degree, Experience: d.Experience, About: d.About, Fees: d.Fees,
			Address: addressDoc(d.Address),
		},
		Amount:      a.Amount,
		Date:        a.Date,
		Cancelled:   a.Cancelled,
		Payment:     a.Payment,
		IsCompleted: a.IsCompleted,
	}
}

func (doc *appointmentDoc) toAppointment() *Appointment {
	u, d := doc.UserData, doc.DocData
	return &Appointment{
		ID:       doc.ID.Hex(),
		UserID:   doc.UserID,
		DocID:    doc.DocID,
		SlotDate: doc.SlotDate,
		SlotTime: doc.SlotTime,
		UserData: patient.Snapshot{
			ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image, Phone: u.Phone,
			Address: patient.Address(u.Address), Gender: u.Gender, DOB: u.DOB,
		},
		DocData: doctor.Snapshot{
			ID: d.ID, Name: d.Name, Email: d.Email, Image: d.Image, Specialty: d.Specialty,
			Degree: d.Degree, Experience: d.Experience, About: d.About, Fees: d.Fees,
			Address: doctor.Address(d.Address),
		},
		Amount:      doc.Amount,
		Date:        doc.Date,
		Cancelled:   doc.Cancelled,
		Payment:     doc.Payment,
		IsCompleted: doc.IsCompleted,
	}
}

type repoMongo struct {
	coll *mongo.Collection
}

func NewRepoMongo(database *mongo.Database) Repository {
	return &repoMongo{coll: database.Collection(mongodb.AppointmentsCollection)}
}

var newestFirst = bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}

func (r *repoMongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Appointment, error) {
	if opts == nil {
		opts = options.Find()
	}
	cur, err := r.coll.Find(ctx, filter, opts.SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer cur.Close(ctx)

	items := make([]*Appointment, 0)
	for cur.Next(ctx) {
		var doc appointmentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode appointment: %w", err)
		}
		items = append(items, doc.toAppointment())
	}
	return items, cur.Err()
}

func (r *repoMongo) Create(ctx context.Context, a *Appointment) error {
	doc := toDoc(a)
	if oid, err := primitive.ObjectIDFromHex(a.ID); err == nil {
		doc.ID = oid
	} else {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	a.ID = doc.ID.Hex()
	return nil
}

func (r *repoMongo) GetByID(ctx context.Context, id string) (*Appointment, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc appointmentDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	return doc.toAppointment(), nil
}

func (r *repoMongo) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	return r.find(ctx, bson.M{"userId": userID}, nil)
}

func (r *repoMongo) ListByDoctor(ctx context.Context, docID string) ([]*Appointment, error) {
	return r.find(ctx, bson.M{"docId": docID}, nil)
}

func (r *repoMongo) List(ctx context.Context, p pagination.Params) ([]*Appointment, int, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetLimit(int64(p.Limit)).SetSkip(int64(p.Offset))
	items, err := r.find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoMongo) ListActive(ctx context.Context) ([]*Appointment, error) {
	return r.find(ctx, bson.M{"cancelled": false}, nil)
}

// setActive sets field on an appointment that is not cancelled. exists is
// only meaningful when modified is false.
func (r *repoMongo) setActive(ctx context.Context, id, field string) (modified bool, exists bool, err error) {
	oid, convErr := primitive.ObjectIDFromHex(id)
	if convErr != nil {
		return false, false, nil
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "cancelled": false},
		bson.M{"$set": bson.M{field: true}})
	if err != nil {
		return false, false, fmt.Errorf("update appointment %s: %w", field, err)
	}
	if res.MatchedCount == 1 {
		return true, true, nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, false, fmt.Errorf("lookup appointment: %w", err)
	}
	return false, n > 0, nil
}

func (r *repoMongo) MarkCancelled(ctx context.Context, id string) (bool, error) {
	modified, exists, err := r.setActive(ctx, id, "cancelled")
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return modified, nil
}

func (r *repoMongo) MarkCompleted(ctx context.Context, id string) error {
	modified, exists, err := r.setActive(ctx, id, "isCompleted")
	switch {
	case err != nil:
		return err
	case !exists:
		return ErrNotFound
	case !modified:
		return ErrCancelled
	}
	return nil
}

func (r *repoMongo) MarkPaid(ctx context.Context, id string) error {
	modified, _, err := r.setActive(ctx, id, "payment")
	if err != nil {
		return err
	}
	if !modified {
		return ErrNotPayable
	}
	return nil
}

func (r *repoMongo) Count(ctx context.Context) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return int(n), nil
}
