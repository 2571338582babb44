package delivery

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// parseID parses a hex object id; a malformed id cannot name an existing
// record, so it reports notFound.
func parseID(id string, notFound error) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, notFound
	}
	return oid, nil
}
