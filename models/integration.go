package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	IntegrationConnected    = "connected"
	IntegrationDisconnected = "disconnected"

	ConnectionActive   = "active"
	ConnectionInactive = "inactive"
	ConnectionError    = "error"
)

// IntegrationConfig holds the known connection keys; anything else lands in Extra.
type IntegrationConfig struct {
	APIKey           string                 `bson:"apiKey,omitempty" json:"apiKey,omitempty"`
	WebhookURL       string                 `bson:"webhookUrl,omitempty" json:"webhookUrl,omitempty"`
	LastConnected    *time.Time             `bson:"lastConnected,omitempty" json:"lastConnected,omitempty"`
	LastDisconnected *time.Time             `bson:"lastDisconnected,omitempty" json:"lastDisconnected,omitempty"`
	ConnectionStatus string                 `bson:"connectionStatus,omitempty" json:"connectionStatus,omitempty"`
	Extra            map[string]interface{} `bson:",inline" json:"-"`
}

func (c IntegrationConfig) MarshalJSON() ([]byte, error) {
	type known IntegrationConfig
	return marshalWithExtra(known(c), c.Extra)
}

func (c *IntegrationConfig) UnmarshalJSON(data []byte) error {
	type known IntegrationConfig
	var k known
	extra, err := splitExtra(data, &k, "apiKey", "webhookUrl", "lastConnected", "lastDisconnected", "connectionStatus")
	if err != nil {
		return err
	}
	*c = IntegrationConfig(k)
	c.Extra = extra
	return nil
}

type Integration struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Category    string             `bson:"category" json:"category"`
	Status      string             `bson:"status" json:"status"`
	IsPopular   bool               `bson:"isPopular" json:"isPopular"`
	Icon        string             `bson:"icon" json:"icon"`
	Config      IntegrationConfig  `bson:"config" json:"config"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (i *Integration) Validate() error {
	var c checker
	c.required("name", i.Name)
	c.required("category", i.Category)
	c.oneOf("status", i.Status, IntegrationConnected, IntegrationDisconnected)
	if i.Config.ConnectionStatus != "" {
		c.oneOf("config.connectionStatus", i.Config.ConnectionStatus, ConnectionActive, ConnectionInactive, ConnectionError)
	}
	return c.errs.OrNil()
}

// Toggled returns the opposite connection status.
func (i *Integration) Toggled() string {
	if i.Status == IntegrationConnected {
		return IntegrationDisconnected
	}
	return IntegrationConnected
}
