package mongodb

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// NewDocumentID generates a new MongoDB ObjectID as a string.
func NewDocumentID() string {
	return bson.NewObjectID().Hex()
}
