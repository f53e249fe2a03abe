package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message belongs to the thread of one RegisteredService.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ServiceID  primitive.ObjectID `bson:"serviceId" json:"serviceId"`
	SenderID   string             `bson:"senderId" json:"senderId"`
	SenderRole Role               `bson:"senderRole" json:"senderRole"`
	Content    string             `bson:"content" json:"content"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
	Read       bool               `bson:"read" json:"read"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (m *Message) Validate() error {
	var c checker
	if m.ServiceID.IsZero() {
		c.add("serviceId", "is required")
	}
	c.required("senderId", m.SenderID)
	c.oneOf("senderRole", string(m.SenderRole), string(RoleUser), string(RoleAdmin))
	c.required("content", m.Content)
	if len(m.Content) > 5000 {
		c.add("content", "must be at most 5000 characters")
	}
	return c.errs.OrNil()
}
