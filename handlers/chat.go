package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"marketplace/store"

	"github.com/gin-gonic/gin"
)

// Conversation summarises one registration's message thread for the caller.
type Conversation struct {
	ServiceID     string     `json:"serviceId"`
	Name          string     `json:"name"`
	UserEmail     string     `json:"userEmail"`
	Status        string     `json:"status"`
	LastMessage   string     `json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	Unread        int64      `json:"unread"`
}

// Conversations lists the caller's threads (every thread for admins), most recent activity first.
func (h *MessageHandler) Conversations(c *gin.Context) {
	caller := identity(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	q, ok := scoped(store.Query{}, caller)
	if !ok {
		c.JSON(http.StatusOK, []Conversation{})
		return
	}
	regs, err := h.Store.RegisteredServices.List(ctx, q)
	if err != nil {
		h.fail(c, err, "Message")
		return
	}

	out := make([]Conversation, 0, len(regs))
	for _, reg := range regs {
		conv := Conversation{
			ServiceID: reg.ID.Hex(),
			Name:      reg.Name,
			UserEmail: reg.UserEmail,
			Status:    reg.Status,
		}
		last, err := h.Store.Messages.List(ctx, store.Query{Limit: 1}.Eq("serviceId", reg.ID).Sort("timestamp", true))
		if err != nil {
			h.fail(c, err, "Message")
			return
		}
		if len(last) == 0 {
			continue
		}
		ts := last[0].Timestamp
		conv.LastMessage = last[0].Content
		conv.LastMessageAt = &ts
		conv.Unread, err = h.Store.Messages.Count(ctx, store.Query{}.
			Eq("serviceId", reg.ID).
			Ne("senderId", caller.ID).
			Eq("read", false))
		if err != nil {
			h.fail(c, err, "Message")
			return
		}
		out = append(out, conv)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(*out[j].LastMessageAt)
	})
	c.JSON(http.StatusOK, out)
}
