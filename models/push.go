package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PushKeys struct {
	P256dh string `bson:"p256dh" json:"p256dh"`
	Auth   string `bson:"auth" json:"auth"`
}

// PushSubscription is a browser web-push endpoint registered by a signed-in account.
type PushSubscription struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID    string             `bson:"ownerId" json:"ownerId"`
	OwnerEmail string             `bson:"ownerEmail" json:"ownerEmail"`
	Endpoint   string             `bson:"endpoint" json:"endpoint"`
	Keys       PushKeys           `bson:"keys" json:"keys"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}
