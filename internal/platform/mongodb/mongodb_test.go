package mongodb

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestBsonD_PreservesOrder(t *testing.T) {
	d := bsonD("docId", 1, "slotDate", 1, "slotTime", -1)
	want := bson.D{{Key: "docId", Value: 1}, {Key: "slotDate", Value: 1}, {Key: "slotTime", Value: -1}}
	if len(d) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(d))
	}
	for i := range want {
		if d[i] != want[i] {
			t.Errorf("element %d: expected %v, got %v", i, want[i], d[i])
		}
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if IsDuplicateKey(nil) {
		t.Error("nil should not be a duplicate key error")
	}
	if IsDuplicateKey(errors.New("boom")) {
		t.Error("plain error should not be a duplicate key error")
	}
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	if !IsDuplicateKey(dup) {
		t.Error("expected E11000 write exception to be a duplicate key error")
	}
}
