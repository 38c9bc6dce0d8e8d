package memory

import (
	"fmt"
	"time"

	"limscore/pkg/domain"
)

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// nextPrefixedID allocates the lowest unused id of the form prefix + zero
// padded sequence, starting from the bucket size.
func nextPrefixedID(prefix string, count int, exists func(string) bool) string {
	next := count + 1
	for {
		id := fmt.Sprintf("%s%03d", prefix, next)
		if !exists(id) {
			return id
		}
		next++
	}
}

// NextSampleID allocates the next sample id in the S000 series.
func (tx *transaction) NextSampleID() string {
	return nextPrefixedID("S", len(tx.state.samples), func(id string) bool {
		_, ok := tx.state.samples[id]
		return ok
	})
}

// NextPrepBatchID allocates the next prep batch id in the PB000 series.
func (tx *transaction) NextPrepBatchID() string {
	return nextPrefixedID("PB", len(tx.state.prepBatches), func(id string) bool {
		_, ok := tx.state.prepBatches[id]
		return ok
	})
}

// NextAnalyticalBatchID allocates the next analytical batch id in the AB000 series.
func (tx *transaction) NextAnalyticalBatchID() string {
	return nextPrefixedID("AB", len(tx.state.analytical), func(id string) bool {
		_, ok := tx.state.analytical[id]
		return ok
	})
}

// NextUserID allocates a user id one past the highest numeric suffix held by
// any existing account or pending request.
func (tx *transaction) NextUserID() string {
	max := 0
	for id := range tx.state.users {
		if n, ok := numericSuffix(id); ok && n > max {
			max = n
		}
	}
	for id := range tx.state.pendingRequests {
		if n, ok := numericSuffix(id); ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("U%03d", max+1)
}

// CreateSample stores a new sample within the transaction.
func (tx *transaction) CreateSample(s Sample) (Sample, error) {
	if s.ID == "" {
		s.ID = tx.NextSampleID()
	}
	if _, exists := tx.state.samples[s.ID]; exists {
		return Sample{}, fmt.Errorf("sample %q already exists", s.ID)
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	s.Version = 1
	tx.state.samples[s.ID] = cloneSample(s)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionCreate, After: cloneSample(s)})
	return cloneSample(s), nil
}

// UpdateSample mutates a sample using the provided mutator function.
func (tx *transaction) UpdateSample(id string, mutator func(*Sample) error) (Sample, error) {
	current, ok := tx.state.samples[id]
	if !ok {
		return Sample{}, domain.ErrNotFound{Entity: domain.EntitySample, ID: id}
	}
	before := cloneSample(current)
	if err := mutator(&current); err != nil {
		return Sample{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.samples[id] = cloneSample(current)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionUpdate, Before: before, After: cloneSample(current)})
	return cloneSample(current), nil
}

// DeleteSample removes a sample from the transaction state.
func (tx *transaction) DeleteSample(id string) error {
	current, ok := tx.state.samples[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntitySample, ID: id}
	}
	if current.PrepBatchID != nil {
		return fmt.Errorf("sample %q still assigned to prep batch %q", id, *current.PrepBatchID)
	}
	delete(tx.state.samples, id)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ActionDelete, Before: cloneSample(current)})
	return nil
}

// CreateAssay stores a new assay definition.
func (tx *transaction) CreateAssay(a Assay) (Assay, error) {
	if a.ID == "" {
		a.ID = fmt.Sprintf("assay-%s", a.Code)
	}
	if _, exists := tx.state.assays[a.ID]; exists {
		return Assay{}, fmt.Errorf("assay %q already exists", a.ID)
	}
	for _, existing := range tx.state.assays {
		if existing.Code == a.Code {
			return Assay{}, fmt.Errorf("assay code %q already in use", a.Code)
		}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	a.Version = 1
	tx.state.assays[a.ID] = cloneAssay(a)
	tx.recordChange(Change{Entity: domain.EntityAssay, Action: domain.ActionCreate, After: cloneAssay(a)})
	return cloneAssay(a), nil
}

// UpdateAssay mutates an assay using the provided mutator function.
func (tx *transaction) UpdateAssay(id string, mutator func(*Assay) error) (Assay, error) {
	current, ok := tx.state.assays[id]
	if !ok {
		return Assay{}, domain.ErrNotFound{Entity: domain.EntityAssay, ID: id}
	}
	before := cloneAssay(current)
	if err := mutator(&current); err != nil {
		return Assay{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.assays[id] = cloneAssay(current)
	tx.recordChange(Change{Entity: domain.EntityAssay, Action: domain.ActionUpdate, Before: before, After: cloneAssay(current)})
	return cloneAssay(current), nil
}

// DeleteAssay removes an assay definition from state.
func (tx *transaction) DeleteAssay(id string) error {
	current, ok := tx.state.assays[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityAssay, ID: id}
	}
	for _, batch := range tx.state.prepBatches {
		if batch.AssayCode == current.Code {
			return fmt.Errorf("assay %q still referenced by prep batch %q", current.Code, batch.ID)
		}
	}
	for _, batch := range tx.state.analytical {
		if batch.AssayCode == current.Code {
			return fmt.Errorf("assay %q still referenced by analytical batch %q", current.Code, batch.ID)
		}
	}
	delete(tx.state.assays, id)
	tx.recordChange(Change{Entity: domain.EntityAssay, Action: domain.ActionDelete, Before: cloneAssay(current)})
	return nil
}

// CreatePrepBatch stores a new prep batch.
func (tx *transaction) CreatePrepBatch(b PrepBatch) (PrepBatch, error) {
	if b.ID == "" {
		b.ID = tx.NextPrepBatchID()
	}
	if _, exists := tx.state.prepBatches[b.ID]; exists {
		return PrepBatch{}, fmt.Errorf("prep batch %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	b.Version = 1
	tx.state.prepBatches[b.ID] = clonePrepBatch(b)
	tx.recordChange(Change{Entity: domain.EntityPrepBatch, Action: domain.ActionCreate, After: clonePrepBatch(b)})
	return clonePrepBatch(b), nil
}

// UpdatePrepBatch mutates a prep batch using the provided mutator function.
func (tx *transaction) UpdatePrepBatch(id string, mutator func(*PrepBatch) error) (PrepBatch, error) {
	current, ok := tx.state.prepBatches[id]
	if !ok {
		return PrepBatch{}, domain.ErrNotFound{Entity: domain.EntityPrepBatch, ID: id}
	}
	before := clonePrepBatch(current)
	if err := mutator(&current); err != nil {
		return PrepBatch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.prepBatches[id] = clonePrepBatch(current)
	tx.recordChange(Change{Entity: domain.EntityPrepBatch, Action: domain.ActionUpdate, Before: before, After: clonePrepBatch(current)})
	return clonePrepBatch(current), nil
}

// DeletePrepBatch removes a prep batch from state.
func (tx *transaction) DeletePrepBatch(id string) error {
	current, ok := tx.state.prepBatches[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPrepBatch, ID: id}
	}
	for _, batch := range tx.state.analytical {
		if containsString(batch.PrepBatchIDs, id) {
			return fmt.Errorf("prep batch %q still referenced by analytical batch %q", id, batch.ID)
		}
	}
	delete(tx.state.prepBatches, id)
	tx.recordChange(Change{Entity: domain.EntityPrepBatch, Action: domain.ActionDelete, Before: clonePrepBatch(current)})
	return nil
}

// CreateAnalyticalBatch stores a new analytical batch.
func (tx *transaction) CreateAnalyticalBatch(b AnalyticalBatch) (AnalyticalBatch, error) {
	if b.ID == "" {
		b.ID = tx.NextAnalyticalBatchID()
	}
	if _, exists := tx.state.analytical[b.ID]; exists {
		return AnalyticalBatch{}, fmt.Errorf("analytical batch %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	b.Version = 1
	tx.state.analytical[b.ID] = cloneAnalyticalBatch(b)
	tx.recordChange(Change{Entity: domain.EntityAnalyticalBatch, Action: domain.ActionCreate, After: cloneAnalyticalBatch(b)})
	return cloneAnalyticalBatch(b), nil
}

// UpdateAnalyticalBatch mutates an analytical batch using the provided mutator function.
func (tx *transaction) UpdateAnalyticalBatch(id string, mutator func(*AnalyticalBatch) error) (AnalyticalBatch, error) {
	current, ok := tx.state.analytical[id]
	if !ok {
		return AnalyticalBatch{}, domain.ErrNotFound{Entity: domain.EntityAnalyticalBatch, ID: id}
	}
	before := cloneAnalyticalBatch(current)
	if err := mutator(&current); err != nil {
		return AnalyticalBatch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.analytical[id] = cloneAnalyticalBatch(current)
	tx.recordChange(Change{Entity: domain.EntityAnalyticalBatch, Action: domain.ActionUpdate, Before: before, After: cloneAnalyticalBatch(current)})
	return cloneAnalyticalBatch(current), nil
}

// DeleteAnalyticalBatch removes an analytical batch from state.
func (tx *transaction) DeleteAnalyticalBatch(id string) error {
	current, ok := tx.state.analytical[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityAnalyticalBatch, ID: id}
	}
	delete(tx.state.analytical, id)
	tx.recordChange(Change{Entity: domain.EntityAnalyticalBatch, Action: domain.ActionDelete, Before: cloneAnalyticalBatch(current)})
	return nil
}

// CreateRole stores a new role definition.
func (tx *transaction) CreateRole(r RoleDefinition) (RoleDefinition, error) {
	if r.ID == "" {
		return RoleDefinition{}, fmt.Errorf("role id required")
	}
	if _, exists := tx.state.roles[r.ID]; exists {
		return RoleDefinition{}, fmt.Errorf("role %q already exists", r.ID)
	}
	for _, existing := range tx.state.roles {
		if existing.Name == r.Name {
			return RoleDefinition{}, fmt.Errorf("role name %q already in use", r.Name)
		}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	r.Version = 1
	tx.state.roles[r.ID] = cloneRole(r)
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionCreate, After: cloneRole(r)})
	return cloneRole(r), nil
}

// UpdateRole mutates a role definition using the provided mutator function.
func (tx *transaction) UpdateRole(id string, mutator func(*RoleDefinition) error) (RoleDefinition, error) {
	current, ok := tx.state.roles[id]
	if !ok {
		return RoleDefinition{}, domain.ErrNotFound{Entity: domain.EntityRole, ID: id}
	}
	before := cloneRole(current)
	if err := mutator(&current); err != nil {
		return RoleDefinition{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.roles[id] = cloneRole(current)
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionUpdate, Before: before, After: cloneRole(current)})
	return cloneRole(current), nil
}

// DeleteRole removes a role definition from state.
func (tx *transaction) DeleteRole(id string) error {
	current, ok := tx.state.roles[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityRole, ID: id}
	}
	for _, user := range tx.state.users {
		for _, assignment := range user.Roles {
			if assignment.Role != current.Kind {
				continue
			}
			if current.AssayType == nil || *current.AssayType == assignment.AssayType {
				return fmt.Errorf("role %q still assigned to user %q", current.Name, user.Username)
			}
		}
	}
	delete(tx.state.roles, id)
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionDelete, Before: cloneRole(current)})
	return nil
}

// CreateUser stores a new user account.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.NextUserID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, fmt.Errorf("user %q already exists", u.ID)
	}
	for _, existing := range tx.state.users {
		if existing.Username == u.Username {
			return User{}, fmt.Errorf("username %q already in use", u.Username)
		}
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	u.Version = 1
	tx.state.users[u.ID] = cloneUser(u)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: cloneUser(u)})
	return cloneUser(u), nil
}

// UpdateUser mutates a user account using the provided mutator function.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.ErrNotFound{Entity: domain.EntityUser, ID: id}
	}
	before := cloneUser(current)
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.users[id] = cloneUser(current)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: cloneUser(current)})
	return cloneUser(current), nil
}

// DeleteUser removes a user account from state.
func (tx *transaction) DeleteUser(id string) error {
	current, ok := tx.state.users[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityUser, ID: id}
	}
	delete(tx.state.users, id)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: cloneUser(current)})
	return nil
}

// CreatePendingRequest stores a new pending account request.
func (tx *transaction) CreatePendingRequest(p PendingUserRequest) (PendingUserRequest, error) {
	if p.ID == "" {
		p.ID = tx.NextUserID()
	}
	if _, exists := tx.state.pendingRequests[p.ID]; exists {
		return PendingUserRequest{}, fmt.Errorf("pending request %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	p.Version = 1
	tx.state.pendingRequests[p.ID] = clonePendingRequest(p)
	tx.recordChange(Change{Entity: domain.EntityPendingUser, Action: domain.ActionCreate, After: clonePendingRequest(p)})
	return clonePendingRequest(p), nil
}

// UpdatePendingRequest mutates a pending request using the provided mutator function.
func (tx *transaction) UpdatePendingRequest(id string, mutator func(*PendingUserRequest) error) (PendingUserRequest, error) {
	current, ok := tx.state.pendingRequests[id]
	if !ok {
		return PendingUserRequest{}, domain.ErrNotFound{Entity: domain.EntityPendingUser, ID: id}
	}
	before := clonePendingRequest(current)
	if err := mutator(&current); err != nil {
		return PendingUserRequest{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.pendingRequests[id] = clonePendingRequest(current)
	tx.recordChange(Change{Entity: domain.EntityPendingUser, Action: domain.ActionUpdate, Before: before, After: clonePendingRequest(current)})
	return clonePendingRequest(current), nil
}

// DeletePendingRequest removes a pending request from state.
func (tx *transaction) DeletePendingRequest(id string) error {
	current, ok := tx.state.pendingRequests[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPendingUser, ID: id}
	}
	delete(tx.state.pendingRequests, id)
	tx.recordChange(Change{Entity: domain.EntityPendingUser, Action: domain.ActionDelete, Before: clonePendingRequest(current)})
	return nil
}

// CreateRegistration stores credential material keyed by username.
func (tx *transaction) CreateRegistration(r RegistrationRecord) (RegistrationRecord, error) {
	if r.Username == "" {
		return RegistrationRecord{}, fmt.Errorf("registration username required")
	}
	if _, exists := tx.state.registrations[r.Username]; exists {
		return RegistrationRecord{}, fmt.Errorf("registration for %q already exists", r.Username)
	}
	if r.ID == "" {
		r.ID = "reg-" + r.Username
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	r.Version = 1
	tx.state.registrations[r.Username] = r
	tx.recordChange(Change{Entity: domain.EntityRegistration, Action: domain.ActionCreate, After: r})
	return r, nil
}

// DeleteRegistration removes stored credential material for a username.
func (tx *transaction) DeleteRegistration(username string) error {
	current, ok := tx.state.registrations[username]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityRegistration, ID: username}
	}
	delete(tx.state.registrations, username)
	tx.recordChange(Change{Entity: domain.EntityRegistration, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateInventoryItem stores a new inventory item.
func (tx *transaction) CreateInventoryItem(i InventoryItem) (InventoryItem, error) {
	if i.ID == "" {
		i.ID = nextPrefixedID("INV", len(tx.state.inventory), func(id string) bool {
			_, ok := tx.state.inventory[id]
			return ok
		})
	}
	if _, exists := tx.state.inventory[i.ID]; exists {
		return InventoryItem{}, fmt.Errorf("inventory item %q already exists", i.ID)
	}
	i.CreatedAt = tx.now
	i.UpdatedAt = tx.now
	i.Version = 1
	tx.state.inventory[i.ID] = cloneInventoryItem(i)
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionCreate, After: cloneInventoryItem(i)})
	return cloneInventoryItem(i), nil
}

// UpdateInventoryItem mutates an inventory item using the provided mutator function.
func (tx *transaction) UpdateInventoryItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error) {
	current, ok := tx.state.inventory[id]
	if !ok {
		return InventoryItem{}, domain.ErrNotFound{Entity: domain.EntityInventoryItem, ID: id}
	}
	before := cloneInventoryItem(current)
	if err := mutator(&current); err != nil {
		return InventoryItem{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.inventory[id] = cloneInventoryItem(current)
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionUpdate, Before: before, After: cloneInventoryItem(current)})
	return cloneInventoryItem(current), nil
}

// DeleteInventoryItem removes an inventory item from state.
func (tx *transaction) DeleteInventoryItem(id string) error {
	current, ok := tx.state.inventory[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityInventoryItem, ID: id}
	}
	delete(tx.state.inventory, id)
	tx.recordChange(Change{Entity: domain.EntityInventoryItem, Action: domain.ActionDelete, Before: cloneInventoryItem(current)})
	return nil
}

// CreateEquipment stores a new equipment record.
func (tx *transaction) CreateEquipment(e Equipment) (Equipment, error) {
	if e.ID == "" {
		e.ID = nextPrefixedID("EQ", len(tx.state.equipment), func(id string) bool {
			_, ok := tx.state.equipment[id]
			return ok
		})
	}
	if _, exists := tx.state.equipment[e.ID]; exists {
		return Equipment{}, fmt.Errorf("equipment %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	e.Version = 1
	tx.state.equipment[e.ID] = cloneEquipment(e)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionCreate, After: cloneEquipment(e)})
	return cloneEquipment(e), nil
}

// UpdateEquipment mutates an equipment record using the provided mutator function.
func (tx *transaction) UpdateEquipment(id string, mutator func(*Equipment) error) (Equipment, error) {
	current, ok := tx.state.equipment[id]
	if !ok {
		return Equipment{}, domain.ErrNotFound{Entity: domain.EntityEquipment, ID: id}
	}
	before := cloneEquipment(current)
	if err := mutator(&current); err != nil {
		return Equipment{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.equipment[id] = cloneEquipment(current)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionUpdate, Before: before, After: cloneEquipment(current)})
	return cloneEquipment(current), nil
}

// DeleteEquipment removes an equipment record from state.
func (tx *transaction) DeleteEquipment(id string) error {
	current, ok := tx.state.equipment[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityEquipment, ID: id}
	}
	for _, batch := range tx.state.prepBatches {
		if containsString(batch.EquipmentIDs, id) {
			return fmt.Errorf("equipment %q still referenced by prep batch %q", id, batch.ID)
		}
	}
	delete(tx.state.equipment, id)
	tx.recordChange(Change{Entity: domain.EntityEquipment, Action: domain.ActionDelete, Before: cloneEquipment(current)})
	return nil
}
