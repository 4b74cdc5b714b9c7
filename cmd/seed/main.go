// Command seed loads a demo provider catalog and two weeks of slots.
package main

import (
	"context"
	"log"
	"math/rand"
	"time"

	"kuraos/config"
	"kuraos/database"
	catalogRepo "kuraos/database/repository/catalog"
	timeslotRepo "kuraos/database/repository/timeslot"
	"kuraos/models"

	"go.mongodb.org/mongo-driver/bson"
)

const providerID = "demo-studio"

var services = []models.Service{
	{ID: "intro-call", ProviderID: providerID, Title: "Intro call", Duration: 20 * time.Minute, Price: 0, Currency: "EUR", Kind: "session"},
	{ID: "private-session", ProviderID: providerID, Title: "Private session", Duration: time.Hour, Price: 85, Currency: "EUR", Kind: "session"},
	{ID: "weekend-workshop", ProviderID: providerID, Title: "Weekend workshop", Duration: 3 * time.Hour, Price: 12000, Currency: "JPY", Kind: "workshop"},
}

func main() {
	config.LoadConfig()
	database.InitDB()
	db := database.Database()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer database.CloseDB(ctx)

	catalog := catalogRepo.NewCatalogRepo(db)
	slots := timeslotRepo.NewTimeSlotRepo(db)
	if err := catalog.EnsureIndexes(); err != nil {
		log.Fatalf("Failed to ensure service indexes: %v", err)
	}
	if err := slots.EnsureIndexes(); err != nil {
		log.Fatalf("Failed to ensure timeslot indexes: %v", err)
	}

	ids := make([]string, len(services))
	for i, s := range services {
		ids[i] = s.ID
	}
	// Start from a clean slate for the demo services only.
	if _, err := db.Collection("timeslots").DeleteMany(ctx, bson.M{"serviceId": bson.M{"$in": ids}}); err != nil {
		log.Fatalf("Failed to clear timeslots: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	today := time.Now().UTC().Truncate(24 * time.Hour)

	for _, service := range services {
		if err := catalog.UpsertService(ctx, service); err != nil {
			log.Fatalf("Failed to upsert service %s: %v", service.ID, err)
		}

		var batch []models.Slot
		for day := 1; day <= 14; day++ {
			date := today.AddDate(0, 0, day)
			if service.Kind == "workshop" && date.Weekday() != time.Saturday {
				continue
			}
			for _, hour := range []int{9, 14} {
				start := date.Add(time.Duration(hour) * time.Hour)
				capacity := 1
				if service.Kind == "workshop" {
					capacity = 8 + rng.Intn(5)
				}
				batch = append(batch, models.Slot{
					ServiceID:  service.ID,
					Start:      start,
					End:        start.Add(service.Duration),
					SpotsTotal: capacity,
				})
			}
		}
		created, err := slots.CreateMany(ctx, batch)
		if err != nil {
			log.Fatalf("Failed to create slots for %s: %v", service.ID, err)
		}
		log.Printf("Seeded %s with %d slots", service.ID, len(created))
	}
	log.Println("Demo catalog seeded for provider", providerID)
}
