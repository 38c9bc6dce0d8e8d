package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Mutations accumulate as Change records
// and are evaluated against the rules engine before commit.
type Transaction interface {
	Snapshot() TransactionView
	CreateSample(Sample) (Sample, error)
	UpdateSample(id string, mutator func(*Sample) error) (Sample, error)
	DeleteSample(id string) error
	CreateAssay(Assay) (Assay, error)
	UpdateAssay(id string, mutator func(*Assay) error) (Assay, error)
	DeleteAssay(id string) error
	CreatePrepBatch(PrepBatch) (PrepBatch, error)
	UpdatePrepBatch(id string, mutator func(*PrepBatch) error) (PrepBatch, error)
	DeletePrepBatch(id string) error
	CreateAnalyticalBatch(AnalyticalBatch) (AnalyticalBatch, error)
	UpdateAnalyticalBatch(id string, mutator func(*AnalyticalBatch) error) (AnalyticalBatch, error)
	DeleteAnalyticalBatch(id string) error
	CreateRole(RoleDefinition) (RoleDefinition, error)
	UpdateRole(id string, mutator func(*RoleDefinition) error) (RoleDefinition, error)
	DeleteRole(id string) error
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error
	CreatePendingRequest(PendingUserRequest) (PendingUserRequest, error)
	UpdatePendingRequest(id string, mutator func(*PendingUserRequest) error) (PendingUserRequest, error)
	DeletePendingRequest(id string) error
	CreateRegistration(RegistrationRecord) (RegistrationRecord, error)
	DeleteRegistration(username string) error
	CreateInventoryItem(InventoryItem) (InventoryItem, error)
	UpdateInventoryItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error)
	DeleteInventoryItem(id string) error
	CreateEquipment(Equipment) (Equipment, error)
	UpdateEquipment(id string, mutator func(*Equipment) error) (Equipment, error)
	DeleteEquipment(id string) error
	NextSampleID() string
	NextPrepBatchID() string
	NextAnalyticalBatchID() string
	NextUserID() string
}

// TransactionView provides read-only access to snapshot data. Rules and
// service reads share the same view surface.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSample(id string) (Sample, bool)
	ListSamples() []Sample
	GetAssay(id string) (Assay, bool)
	ListAssays() []Assay
	GetPrepBatch(id string) (PrepBatch, bool)
	ListPrepBatches() []PrepBatch
	GetAnalyticalBatch(id string) (AnalyticalBatch, bool)
	ListAnalyticalBatches() []AnalyticalBatch
	ListRoles() []RoleDefinition
	ListUsers() []User
	ListPendingRequests() []PendingUserRequest
	ListInventoryItems() []InventoryItem
	GetEquipment(id string) (Equipment, bool)
	ListEquipment() []Equipment
}
