package handlers

import (
	"context"
	"fmt"

	"marketplace/models"
	"marketplace/notify"
	"marketplace/store"
)

func notifyStatus(reg *models.RegisteredService) notify.Notification {
	return notify.Notification{
		Title: "Registration " + reg.Status,
		Body:  fmt.Sprintf("Your registration for %s is now %s", reg.Name, reg.Status),
		URL:   "/dashboard/services/" + reg.ID.Hex(),
	}
}

func notifyMessage(reg *models.RegisteredService, msg *models.Message) notify.Notification {
	from := "Support"
	if msg.SenderRole != models.RoleAdmin {
		from = reg.UserEmail
	}
	return notify.Notification{
		Title: from + " sent a message",
		Body:  notify.Truncate(msg.Content, 100),
		URL:   "/dashboard/services/" + reg.ID.Hex() + "/chat",
		Data:  map[string]interface{}{"serviceId": reg.ID.Hex(), "messageId": msg.ID.Hex()},
	}
}

func notifyPayment(p *models.Payment) notify.Notification {
	return notify.Notification{
		Title: "Payment " + p.Status,
		Body:  fmt.Sprintf("%s %.2f for %s is %s", p.Currency, p.Amount, p.ServiceName, p.Status),
		URL:   "/dashboard/payments",
		Data:  map[string]interface{}{"transactionId": p.TransactionID},
	}
}

// adminEmails lists the addresses of active admins.
func (d *Deps) adminEmails(ctx context.Context) []string {
	admins, err := d.Store.Users.List(ctx, store.Query{}.Eq("role", models.RoleAdmin).Eq("isActive", true))
	if err != nil {
		d.Log.WithError(err).Warn("Failed to list admins for notification")
		return nil
	}
	out := make([]string, 0, len(admins))
	for _, a := range admins {
		out = append(out, a.Email)
	}
	return out
}
