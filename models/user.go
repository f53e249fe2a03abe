package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleFreelancer Role = "freelancer"
)

const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusSuspended = "suspended"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password,omitempty" json:"-"`
	FirstName    string             `bson:"firstName" json:"firstName"`
	LastName     string             `bson:"lastName" json:"lastName"`
	Role         Role               `bson:"role" json:"role"`
	Status       string             `bson:"status" json:"status"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	AuthProvider string             `bson:"authProvider" json:"authProvider"`
	GoogleID     string             `bson:"googleId,omitempty" json:"-"`
	Avatar       string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	LastLogin    *time.Time         `bson:"lastLogin,omitempty" json:"lastLogin"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) Validate() error {
	var c checker
	c.email("email", u.Email)
	c.required("firstName", u.FirstName)
	c.oneOf("role", string(u.Role), string(RoleUser), string(RoleAdmin))
	c.oneOf("status", u.Status, UserStatusActive, UserStatusInactive, UserStatusSuspended)
	return c.errs.OrNil()
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
