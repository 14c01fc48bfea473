package repository

import "github.com/iliyamo/table-reservation/internal/model"

// SeedTables is the floor plan loaded by the seed migration and by the
// in-memory store in development.
func SeedTables() []model.Table {
	return []model.Table{
		{ID: 1, Name: "T1", Capacity: 2, PosX: 1, PosY: 1, IsActive: true},
		{ID: 2, Name: "T2", Capacity: 2, PosX: 2, PosY: 1, IsActive: true},
		{ID: 3, Name: "T3", Capacity: 3, PosX: 3, PosY: 1, IsActive: true},
		{ID: 4, Name: "T4", Capacity: 4, PosX: 1, PosY: 2, IsActive: true},
		{ID: 5, Name: "T5", Capacity: 4, PosX: 2, PosY: 2, IsActive: true},
		{ID: 6, Name: "T6", Capacity: 6, PosX: 3, PosY: 2, IsActive: true},
		{ID: 7, Name: "T7", Capacity: 8, PosX: 1, PosY: 3, IsActive: true},
		{ID: 8, Name: "Patio", Capacity: 4, PosX: 4, PosY: 3, IsActive: false},
	}
}

// SeedMenus is the menu catalog matching SeedTables.
func SeedMenus() []model.Menu {
	return []model.Menu{
		{ID: 1, Name: "Nasi Goreng", Price: 35000, IsActive: true},
		{ID: 2, Name: "Mie Ayam", Price: 28000, IsActive: true},
		{ID: 3, Name: "Sate Ayam", Price: 40000, IsActive: true},
		{ID: 4, Name: "Es Teh", Price: 8000, IsActive: true},
		{ID: 5, Name: "Kopi Susu", Price: 18000, IsActive: true},
		{ID: 6, Name: "Rendang", Price: 55000, IsActive: false},
	}
}
