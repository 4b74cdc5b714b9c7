package catalogRepo

import (
	"context"
	"testing"

	"kuraos/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestCatalogRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list services", func(mt *mtest.T) {
		repo := NewCatalogRepo(mt.DB)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "id", Value: "a"}, {Key: "providerId", Value: "p1"}, {Key: "title", Value: "Intro"}, {Key: "price", Value: 0.0}},
			bson.D{{Key: "id", Value: "b"}, {Key: "providerId", Value: "p1"}, {Key: "title", Value: "Massage"}, {Key: "price", Value: 50.0}, {Key: "currency", Value: "EUR"}},
		))

		services, err := repo.ListServices(context.Background(), "p1")
		require.NoError(t, err)
		require.Len(t, services, 2)
		assert.False(t, services[0].RequiresPayment())
		assert.True(t, services[1].RequiresPayment())
		assert.Equal(t, "EUR", services[1].Currency)
	})

	mt.Run("unknown service", func(mt *mtest.T) {
		repo := NewCatalogRepo(mt.DB)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetService(context.Background(), "missing")
		assert.Equal(t, models.ErrServiceNotFound, models.KindOf(err))
	})

	mt.Run("negative price is rejected", func(mt *mtest.T) {
		repo := NewCatalogRepo(mt.DB)
		err := repo.UpsertService(context.Background(), models.Service{ID: "x", Price: -5})
		assert.Equal(t, models.ErrValidation, models.KindOf(err))
	})
}
