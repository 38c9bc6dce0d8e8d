package memory

import (
	"sort"

	"limscore/pkg/domain"
)

// transactionView exposes a read-only snapshot of the transactional state to
// rules and service reads.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListSamples returns all samples within the snapshot, ordered by ID.
func (v transactionView) ListSamples() []Sample {
	out := make([]Sample, 0, len(v.state.samples))
	for _, s := range v.state.samples {
		out = append(out, cloneSample(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAssays returns all assays in the snapshot, ordered by code.
func (v transactionView) ListAssays() []Assay {
	out := make([]Assay, 0, len(v.state.assays))
	for _, a := range v.state.assays {
		out = append(out, cloneAssay(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ListPrepBatches returns all prep batches in the snapshot, ordered by ID.
func (v transactionView) ListPrepBatches() []PrepBatch {
	out := make([]PrepBatch, 0, len(v.state.prepBatches))
	for _, b := range v.state.prepBatches {
		out = append(out, clonePrepBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListAnalyticalBatches returns all analytical batches in the snapshot, ordered by ID.
func (v transactionView) ListAnalyticalBatches() []AnalyticalBatch {
	out := make([]AnalyticalBatch, 0, len(v.state.analytical))
	for _, b := range v.state.analytical {
		out = append(out, cloneAnalyticalBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListRoles returns all role definitions in the snapshot, ordered by name.
func (v transactionView) ListRoles() []RoleDefinition {
	out := make([]RoleDefinition, 0, len(v.state.roles))
	for _, r := range v.state.roles {
		out = append(out, cloneRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListUsers returns all users in the snapshot, ordered by ID.
func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPendingRequests returns all pending account requests, ordered by ID.
func (v transactionView) ListPendingRequests() []PendingUserRequest {
	out := make([]PendingUserRequest, 0, len(v.state.pendingRequests))
	for _, p := range v.state.pendingRequests {
		out = append(out, clonePendingRequest(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListInventoryItems returns all inventory items, ordered by ID.
func (v transactionView) ListInventoryItems() []InventoryItem {
	out := make([]InventoryItem, 0, len(v.state.inventory))
	for _, i := range v.state.inventory {
		out = append(out, cloneInventoryItem(i))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListEquipment returns all equipment records, ordered by ID.
func (v transactionView) ListEquipment() []Equipment {
	out := make([]Equipment, 0, len(v.state.equipment))
	for _, e := range v.state.equipment {
		out = append(out, cloneEquipment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindSample retrieves a sample by ID from the snapshot.
func (v transactionView) FindSample(id string) (Sample, bool) {
	s, ok := v.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(s), true
}

// FindAssay retrieves an assay by ID from the snapshot.
func (v transactionView) FindAssay(id string) (Assay, bool) {
	a, ok := v.state.assays[id]
	if !ok {
		return Assay{}, false
	}
	return cloneAssay(a), true
}

// FindAssayByCode retrieves an assay by its short code.
func (v transactionView) FindAssayByCode(code string) (Assay, bool) {
	for _, a := range v.state.assays {
		if a.Code == code {
			return cloneAssay(a), true
		}
	}
	return Assay{}, false
}

// FindPrepBatch retrieves a prep batch by ID from the snapshot.
func (v transactionView) FindPrepBatch(id string) (PrepBatch, bool) {
	b, ok := v.state.prepBatches[id]
	if !ok {
		return PrepBatch{}, false
	}
	return clonePrepBatch(b), true
}

// FindAnalyticalBatch retrieves an analytical batch by ID from the snapshot.
func (v transactionView) FindAnalyticalBatch(id string) (AnalyticalBatch, bool) {
	b, ok := v.state.analytical[id]
	if !ok {
		return AnalyticalBatch{}, false
	}
	return cloneAnalyticalBatch(b), true
}

// FindRole retrieves a role definition by ID from the snapshot.
func (v transactionView) FindRole(id string) (RoleDefinition, bool) {
	r, ok := v.state.roles[id]
	if !ok {
		return RoleDefinition{}, false
	}
	return cloneRole(r), true
}

// FindUser retrieves a user by ID from the snapshot.
func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// FindUserByUsername retrieves a user by username.
func (v transactionView) FindUserByUsername(username string) (User, bool) {
	for _, u := range v.state.users {
		if u.Username == username {
			return cloneUser(u), true
		}
	}
	return User{}, false
}

// FindPendingRequest retrieves a pending account request by ID.
func (v transactionView) FindPendingRequest(id string) (PendingUserRequest, bool) {
	p, ok := v.state.pendingRequests[id]
	if !ok {
		return PendingUserRequest{}, false
	}
	return clonePendingRequest(p), true
}

// FindRegistration retrieves the stored credential record for a username.
func (v transactionView) FindRegistration(username string) (RegistrationRecord, bool) {
	r, ok := v.state.registrations[username]
	if !ok {
		return RegistrationRecord{}, false
	}
	return r, true
}

// FindInventoryItem retrieves an inventory item by ID from the snapshot.
func (v transactionView) FindInventoryItem(id string) (InventoryItem, bool) {
	i, ok := v.state.inventory[id]
	if !ok {
		return InventoryItem{}, false
	}
	return cloneInventoryItem(i), true
}

// FindEquipment retrieves an equipment record by ID from the snapshot.
func (v transactionView) FindEquipment(id string) (Equipment, bool) {
	e, ok := v.state.equipment[id]
	if !ok {
		return Equipment{}, false
	}
	return cloneEquipment(e), true
}

var _ domain.RuleView = transactionView{}
