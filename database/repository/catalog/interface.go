package catalogRepo

import (
	"context"

	"kuraos/database"
	"kuraos/models"

	"go.mongodb.org/mongo-driver/mongo"
)

type CatalogRepository interface {
	ListServices(ctx context.Context, providerID string) ([]models.Service, error)
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
	UpsertService(ctx context.Context, service models.Service) error
	EnsureIndexes() error
}

type mongoCatalogRepo struct {
	coll *mongo.Collection
}

// NewMongoCatalogRepo constructs a CatalogRepository on the application database.
func NewMongoCatalogRepo() CatalogRepository {
	return NewCatalogRepo(database.Database())
}

func NewCatalogRepo(db *mongo.Database) CatalogRepository {
	return &mongoCatalogRepo{
		coll: db.Collection("services"),
	}
}
