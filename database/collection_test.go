package database

import (
	"context"
	"testing"
	"time"

	"marketplace/models"
	"marketplace/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestFilterDoc(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, bson.M{}, filterDoc(store.Query{}))
	})

	t.Run("single equality", func(t *testing.T) {
		assert.Equal(t, bson.M{"userEmail": "a@x.com"}, filterDoc(store.Query{}.Eq("userEmail", "a@x.com")))
	})

	t.Run("combined", func(t *testing.T) {
		got := filterDoc(store.Query{}.
			Eq("category", "design").
			Ne("senderId", "me").
			Gte("createdAt", since).
			Matching("a.b", "name", "description"))

		and, ok := got["$and"].(bson.A)
		require.True(t, ok)
		require.Len(t, and, 4)
		assert.Equal(t, bson.M{"category": "design"}, and[0])
		assert.Equal(t, bson.M{"senderId": bson.M{"$ne": "me"}}, and[1])
		assert.Equal(t, bson.M{"createdAt": bson.M{"$gte": since}}, and[2])
		assert.Equal(t, bson.M{"$or": bson.A{
			bson.M{"name": bson.M{"$regex": `a\.b`, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": `a\.b`, "$options": "i"}},
		}}, and[3])
	})
}

func TestSortDoc(t *testing.T) {
	assert.Nil(t, sortDoc(store.Query{}))
	assert.Equal(t, bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}},
		sortDoc(store.Query{}.Sort("timestamp", false)))
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
		sortDoc(store.Query{}.Sort("createdAt", true)))
}

func TestCollectionAgainstMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get decodes document", func(mt *mtest.T) {
		c := NewCollection[models.Service](mt.Coll)
		id := primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "name", Value: "Acme Consulting"},
			{Key: "status", Value: "active"},
		}))

		svc, err := c.Get(context.Background(), id.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, id, svc.ID)
		assert.Equal(mt, "Acme Consulting", svc.Name)
	})

	mt.Run("get missing maps to not found", func(mt *mtest.T) {
		c := NewCollection[models.Service](mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := c.Get(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, store.ErrNotFound)
	})

	mt.Run("invalid id never reaches the server", func(mt *mtest.T) {
		c := NewCollection[models.Service](mt.Coll)
		_, err := c.Get(context.Background(), "zzz")
		assert.ErrorIs(mt, err, store.ErrInvalidID)
	})

	mt.Run("create assigns id", func(mt *mtest.T) {
		c := NewCollection[models.Service](mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		svc := &models.Service{Name: "Design"}
		require.NoError(mt, c.Create(context.Background(), svc))
		assert.False(mt, svc.ID.IsZero())
		assert.False(mt, svc.CreatedAt.IsZero())
	})

	mt.Run("duplicate key maps to ErrDuplicate", func(mt *mtest.T) {
		c := NewCollection[models.Service](mt.Coll)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := c.Create(context.Background(), &models.Service{Name: "Design"})
		assert.ErrorIs(mt, err, store.ErrDuplicate)
	})

	mt.Run("update returns new document", func(mt *mtest.T) {
		c := NewCollection[models.Service](mt.Coll)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: id},
			{Key: "name", Value: "Design"},
			{Key: "status", Value: "draft"},
		}}))

		svc, err := c.Update(context.Background(), id.Hex(), bson.M{"status": "draft"})
		require.NoError(mt, err)
		assert.Equal(mt, "draft", svc.Status)
	})

	mt.Run("delete of missing document", func(mt *mtest.T) {
		c := NewCollection[models.Service](mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := c.Delete(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, store.ErrNotFound)
	})
}
