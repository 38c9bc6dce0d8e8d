package core

import (
	"context"
	"strconv"
	"strings"
	"time"

	"limscore/pkg/domain"
)

// CreateInventoryItem records a consumable, reagent, or reference standard.
// Quantity defaults from packages received when unset, and the stock status is
// derived from quantity and expiration.
func (s *Service) CreateInventoryItem(ctx context.Context, item InventoryItem) (InventoryItem, Result, error) {
	var created InventoryItem
	res, err := s.run(ctx, "create_inventory_item", &created.ID, func(tx domain.Transaction) error {
		if strings.TrimSpace(item.Name) == "" {
			return ValidationError{Field: "name", Reason: "must not be blank"}
		}
		if strings.TrimSpace(item.LotNumber) == "" {
			return ValidationError{Field: "lot_number", Reason: "must not be blank"}
		}
		if item.ReceivedDate.IsZero() {
			item.ReceivedDate = s.clock()
		}
		if item.Quantity == 0 && item.PackagesReceived > 0 && item.ItemsPerPackage > 0 {
			item.Quantity = item.PackagesReceived * item.ItemsPerPackage
		}
		item.Status = inventoryStatus(item, s.clock())
		var err error
		created, err = tx.CreateInventoryItem(item)
		return err
	})
	return created, res, err
}

// UpdateInventoryItem mutates an inventory item and re-derives its stock
// status afterwards.
func (s *Service) UpdateInventoryItem(ctx context.Context, id string, mutator func(*InventoryItem) error) (InventoryItem, Result, error) {
	var updated InventoryItem
	res, err := s.run(ctx, "update_inventory_item", &id, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateInventoryItem(id, func(item *InventoryItem) error {
			if err := mutator(item); err != nil {
				return err
			}
			item.Status = inventoryStatus(*item, s.clock())
			return nil
		})
		return err
	})
	return updated, res, err
}

// DeleteInventoryItem removes an inventory item.
func (s *Service) DeleteInventoryItem(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_inventory_item", &id, func(tx domain.Transaction) error {
		return tx.DeleteInventoryItem(id)
	})
}

// ListInventoryItems returns all inventory items ordered by id.
func (s *Service) ListInventoryItems() []InventoryItem {
	return s.store.ListInventoryItems()
}

// CreateEquipment records an instrument.
func (s *Service) CreateEquipment(ctx context.Context, equipment Equipment) (Equipment, Result, error) {
	var created Equipment
	res, err := s.run(ctx, "create_equipment", &created.ID, func(tx domain.Transaction) error {
		if strings.TrimSpace(equipment.Name) == "" {
			return ValidationError{Field: "name", Reason: "must not be blank"}
		}
		if equipment.Status == "" {
			equipment.Status = domain.EquipmentActive
		}
		var err error
		created, err = tx.CreateEquipment(equipment)
		return err
	})
	return created, res, err
}

// UpdateEquipment mutates an equipment record using the provided mutator.
func (s *Service) UpdateEquipment(ctx context.Context, id string, mutator func(*Equipment) error) (Equipment, Result, error) {
	var updated Equipment
	res, err := s.run(ctx, "update_equipment", &id, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateEquipment(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteEquipment removes an instrument. Equipment referenced by a prep batch
// cannot be removed.
func (s *Service) DeleteEquipment(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_equipment", &id, func(tx domain.Transaction) error {
		return tx.DeleteEquipment(id)
	})
}

// RecordEquipmentMaintenance appends a maintenance event, keeping the
// calibration dates in step when the event is a calibration.
func (s *Service) RecordEquipmentMaintenance(ctx context.Context, id string, record domain.MaintenanceRecord) (Equipment, Result, error) {
	var updated Equipment
	res, err := s.run(ctx, "record_equipment_maintenance", &id, func(tx domain.Transaction) error {
		if record.Date.IsZero() {
			record.Date = s.clock()
		}
		var err error
		updated, err = tx.UpdateEquipment(id, func(e *Equipment) error {
			if record.RecordID == "" {
				record.RecordID = e.ID + "-maint-" + strconv.Itoa(len(e.MaintenanceHistory)+1)
			}
			e.MaintenanceHistory = append(e.MaintenanceHistory, record)
			if strings.EqualFold(record.Type, "calibration") {
				calibrated := record.Date
				e.LastCalibration = &calibrated
				next := calibrated.AddDate(1, 0, 0)
				e.NextCalibration = &next
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// GetEquipment retrieves an instrument by id.
func (s *Service) GetEquipment(id string) (Equipment, bool) {
	return s.store.GetEquipment(id)
}

// ListEquipment returns all equipment ordered by id.
func (s *Service) ListEquipment() []Equipment {
	return s.store.ListEquipment()
}

// inventoryStatus derives the stock status: expired wins over quantity checks,
// empty stock is out, ten or fewer on hand is low.
func inventoryStatus(item InventoryItem, now time.Time) domain.InventoryStatus {
	if !item.ExpirationDate.IsZero() && item.ExpirationDate.Before(now) {
		return domain.InventoryExpired
	}
	if item.Quantity <= 0 {
		return domain.InventoryOutOfStock
	}
	if item.Quantity <= 10 {
		return domain.InventoryLowStock
	}
	return domain.InventoryActive
}
