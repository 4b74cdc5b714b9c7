package repository

import (
	bookingRepo "kuraos/database/repository/bookings"
	catalogRepo "kuraos/database/repository/catalog"
	timeslotRepo "kuraos/database/repository/timeslot"
)

// Re-export the CatalogRepository interface and constructors.
type CatalogRepository = catalogRepo.CatalogRepository

var NewMongoCatalogRepo = catalogRepo.NewMongoCatalogRepo

// Re-export the TimeSlotRepository interface and constructor.
type TimeSlotRepository = timeslotRepo.TimeSlotRepository

var NewMongoTimeSlotRepo = timeslotRepo.NewMongoTimeSlotRepo

// Re-export the BookingRepository interface and constructor.
type BookingRepository = bookingRepo.BookingRepository

var NewMongoBookingRepo = bookingRepo.NewMongoBookingRepo
