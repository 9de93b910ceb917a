package patient

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/medibook/medibook/internal/platform/mongodb"
)

type addressDoc struct {
	Line1 string `bson:"line1"`
	Line2 string `bson:"line2"`
}

type userDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Name     string             `bson:"name"`
	Email    string             `bson:"email"`
	Password string             `bson:"password"`
	Image    string             `bson:"image"`
	Phone    string             `bson:"phone"`
	Address  addressDoc         `bson:"address"`
	Gender   string             `bson:"gender"`
	DOB      string             `bson:"dob"`
}

func (doc *userDoc) toUser() *User {
	return &User{
		ID:           doc.ID.Hex(),
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.Password,
		Image:        doc.Image,
		Phone:        doc.Phone,
		Address:      Address{Line1: doc.Address.Line1, Line2: doc.Address.Line2},
		Gender:       doc.Gender,
		DOB:          doc.DOB,
	}
}

type repoMongo struct {
	coll *mongo.Collection
}

func NewRepoMongo(database *mongo.Database) Repository {
	return &repoMongo{coll: database.Collection(mongodb.UsersCollection)}
}

func (r *repoMongo) Create(ctx context.Context, u *User) error {
	doc := userDoc{
		Name:     u.Name,
		Email:    u.Email,
		Password: u.PasswordHash,
		Image:    u.Image,
		Phone:    u.Phone,
		Gender:   u.Gender,
		DOB:      u.DOB,
		Address:  addressDoc{Line1: u.Address.Line1, Line2: u.Address.Line2},
	}
	if oid, err := primitive.ObjectIDFromHex(u.ID); err == nil {
		doc.ID = oid
	} else {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = doc.ID.Hex()
	return nil
}

func (r *repoMongo) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toUser(), nil
}

func (r *repoMongo) GetByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *repoMongo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *repoMongo) UpdateProfile(ctx context.Context, id string, p ProfileUpdate) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	set := bson.M{
		"name":    p.Name,
		"phone":   p.Phone,
		"address": addressDoc{Line1: p.Address.Line1, Line2: p.Address.Line2},
		"dob":     p.DOB,
		"gender":  p.Gender,
	}
	if p.Image != "" {
		set["image"] = p.Image
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoMongo) Count(ctx context.Context) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}
