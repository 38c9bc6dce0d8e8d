package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"limscore/pkg/domain"
)

func TestCreateInventoryItemDerivesQuantityAndStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, _, err := svc.CreateInventoryItem(ctx, InventoryItem{
		Name:             "Methanol, HPLC grade",
		LotNumber:        "LOT-4411",
		PackagesReceived: 4,
		ItemsPerPackage:  6,
	})
	if err != nil {
		t.Fatalf("create inventory item: %v", err)
	}
	if item.Quantity != 24 {
		t.Fatalf("expected quantity 24 from packages, got %d", item.Quantity)
	}
	if item.Status != domain.InventoryActive {
		t.Fatalf("expected active status, got %s", item.Status)
	}
	if item.ReceivedDate != testClock() {
		t.Fatalf("expected received date defaulted to clock, got %v", item.ReceivedDate)
	}
}

func TestInventoryStatusDerivation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		item InventoryItem
		want domain.InventoryStatus
	}{
		{
			name: "expired wins over stock level",
			item: InventoryItem{Name: "CRM THC", LotNumber: "L1", Quantity: 50, ExpirationDate: testClock().AddDate(0, -1, 0)},
			want: domain.InventoryExpired,
		},
		{
			name: "zero quantity is out of stock",
			item: InventoryItem{Name: "Vials", LotNumber: "L2"},
			want: domain.InventoryOutOfStock,
		},
		{
			name: "ten or fewer is low stock",
			item: InventoryItem{Name: "Filters", LotNumber: "L3", Quantity: 10},
			want: domain.InventoryLowStock,
		},
		{
			name: "plenty on hand is active",
			item: InventoryItem{Name: "Pipette tips", LotNumber: "L4", Quantity: 500},
			want: domain.InventoryActive,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item, _, err := svc.CreateInventoryItem(ctx, tc.item)
			if err != nil {
				t.Fatalf("create inventory item: %v", err)
			}
			if item.Status != tc.want {
				t.Fatalf("expected status %s, got %s", tc.want, item.Status)
			}
		})
	}
}

func TestUpdateInventoryItemRederivesStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, _, err := svc.CreateInventoryItem(ctx, InventoryItem{Name: "Acetonitrile", LotNumber: "L9", Quantity: 40})
	if err != nil {
		t.Fatalf("create inventory item: %v", err)
	}
	updated, _, err := svc.UpdateInventoryItem(ctx, item.ID, func(i *InventoryItem) error {
		i.Quantity = 3
		return nil
	})
	if err != nil {
		t.Fatalf("update inventory item: %v", err)
	}
	if updated.Status != domain.InventoryLowStock {
		t.Fatalf("expected low stock after drawdown, got %s", updated.Status)
	}
}

func TestRecordEquipmentMaintenanceTracksCalibration(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	instrument, _, err := svc.CreateEquipment(ctx, Equipment{Name: "HPLC-01", Model: "1260 Infinity"})
	if err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	if instrument.Status != domain.EquipmentActive {
		t.Fatalf("expected active default status, got %s", instrument.Status)
	}

	calibrated := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	updated, _, err := svc.RecordEquipmentMaintenance(ctx, instrument.ID, domain.MaintenanceRecord{
		Type:       "Calibration",
		Technician: "jmorris",
		Date:       calibrated,
	})
	if err != nil {
		t.Fatalf("record maintenance: %v", err)
	}
	if len(updated.MaintenanceHistory) != 1 {
		t.Fatalf("expected one maintenance record, got %d", len(updated.MaintenanceHistory))
	}
	record := updated.MaintenanceHistory[0]
	if record.RecordID == "" || !strings.HasPrefix(record.RecordID, instrument.ID) {
		t.Fatalf("expected generated record id scoped to instrument, got %q", record.RecordID)
	}
	if updated.LastCalibration == nil || !updated.LastCalibration.Equal(calibrated) {
		t.Fatalf("expected last calibration %v, got %v", calibrated, updated.LastCalibration)
	}
	if updated.NextCalibration == nil || !updated.NextCalibration.Equal(calibrated.AddDate(1, 0, 0)) {
		t.Fatalf("expected next calibration one year out, got %v", updated.NextCalibration)
	}

	updated, _, err = svc.RecordEquipmentMaintenance(ctx, instrument.ID, domain.MaintenanceRecord{
		Type:        "repair",
		Description: "replaced pump seal",
	})
	if err != nil {
		t.Fatalf("record repair: %v", err)
	}
	if len(updated.MaintenanceHistory) != 2 {
		t.Fatalf("expected two maintenance records, got %d", len(updated.MaintenanceHistory))
	}
	if updated.MaintenanceHistory[1].Date != testClock() {
		t.Fatalf("expected repair date defaulted to clock, got %v", updated.MaintenanceHistory[1].Date)
	}
	if !updated.LastCalibration.Equal(calibrated) {
		t.Fatalf("repair must not move the calibration date, got %v", updated.LastCalibration)
	}
}

func TestDeleteEquipmentReferencedByBatchFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedBoundedAssay(t, svc, "POT")
	registerSamples(t, svc, "POT", 2)

	instrument, _, err := svc.CreateEquipment(ctx, Equipment{Name: "Shaker-02"})
	if err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	batch, _, err := svc.CreatePrepBatch(ctx, []string{"S001", "S002"}, "POT", "rlee")
	if err != nil {
		t.Fatalf("create prep batch: %v", err)
	}
	if _, _, err := svc.AttachEquipment(ctx, batch.ID, instrument.ID); err != nil {
		t.Fatalf("attach equipment: %v", err)
	}

	if _, err := svc.DeleteEquipment(ctx, instrument.ID); err == nil {
		t.Fatalf("expected deletion of referenced equipment to fail")
	}
	if _, ok := svc.GetEquipment(instrument.ID); !ok {
		t.Fatalf("expected equipment to survive failed deletion")
	}

	unused, _, err := svc.CreateEquipment(ctx, Equipment{Name: "Spare balance"})
	if err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	if _, err := svc.DeleteEquipment(ctx, unused.ID); err != nil {
		t.Fatalf("delete unreferenced equipment: %v", err)
	}
}
