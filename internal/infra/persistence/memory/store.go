// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"limscore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Sample aliases domain.Sample for in-memory persistence operations.
	Sample = domain.Sample
	// Assay aliases domain.Assay.
	Assay = domain.Assay
	// PrepBatch aliases domain.PrepBatch.
	PrepBatch = domain.PrepBatch
	// AnalyticalBatch aliases domain.AnalyticalBatch.
	AnalyticalBatch = domain.AnalyticalBatch
	// RoleDefinition aliases domain.RoleDefinition.
	RoleDefinition = domain.RoleDefinition
	// User aliases domain.User.
	User = domain.User
	// PendingUserRequest aliases domain.PendingUserRequest.
	PendingUserRequest = domain.PendingUserRequest
	// RegistrationRecord aliases domain.RegistrationRecord.
	RegistrationRecord = domain.RegistrationRecord
	// InventoryItem aliases domain.InventoryItem.
	InventoryItem = domain.InventoryItem
	// Equipment aliases domain.Equipment.
	Equipment = domain.Equipment
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	samples         map[string]Sample
	assays          map[string]Assay
	prepBatches     map[string]PrepBatch
	analytical      map[string]AnalyticalBatch
	roles           map[string]RoleDefinition
	users           map[string]User
	pendingRequests map[string]PendingUserRequest
	registrations   map[string]RegistrationRecord
	inventory       map[string]InventoryItem
	equipment       map[string]Equipment
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Samples         map[string]Sample             `json:"samples"`
	Assays          map[string]Assay              `json:"assays"`
	PrepBatches     map[string]PrepBatch          `json:"prep_batches"`
	Analytical      map[string]AnalyticalBatch    `json:"analytical_batches"`
	Roles           map[string]RoleDefinition     `json:"roles"`
	Users           map[string]User               `json:"users"`
	PendingRequests map[string]PendingUserRequest `json:"pending_requests"`
	Registrations   map[string]RegistrationRecord `json:"registrations"`
	Inventory       map[string]InventoryItem      `json:"inventory"`
	Equipment       map[string]Equipment          `json:"equipment"`
}

func newMemoryState() memoryState {
	return memoryState{
		samples:         make(map[string]Sample),
		assays:          make(map[string]Assay),
		prepBatches:     make(map[string]PrepBatch),
		analytical:      make(map[string]AnalyticalBatch),
		roles:           make(map[string]RoleDefinition),
		users:           make(map[string]User),
		pendingRequests: make(map[string]PendingUserRequest),
		registrations:   make(map[string]RegistrationRecord),
		inventory:       make(map[string]InventoryItem),
		equipment:       make(map[string]Equipment),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Samples:         make(map[string]Sample, len(state.samples)),
		Assays:          make(map[string]Assay, len(state.assays)),
		PrepBatches:     make(map[string]PrepBatch, len(state.prepBatches)),
		Analytical:      make(map[string]AnalyticalBatch, len(state.analytical)),
		Roles:           make(map[string]RoleDefinition, len(state.roles)),
		Users:           make(map[string]User, len(state.users)),
		PendingRequests: make(map[string]PendingUserRequest, len(state.pendingRequests)),
		Registrations:   make(map[string]RegistrationRecord, len(state.registrations)),
		Inventory:       make(map[string]InventoryItem, len(state.inventory)),
		Equipment:       make(map[string]Equipment, len(state.equipment)),
	}
	for k, v := range state.samples {
		s.Samples[k] = cloneSample(v)
	}
	for k, v := range state.assays {
		s.Assays[k] = cloneAssay(v)
	}
	for k, v := range state.prepBatches {
		s.PrepBatches[k] = clonePrepBatch(v)
	}
	for k, v := range state.analytical {
		s.Analytical[k] = cloneAnalyticalBatch(v)
	}
	for k, v := range state.roles {
		s.Roles[k] = cloneRole(v)
	}
	for k, v := range state.users {
		s.Users[k] = cloneUser(v)
	}
	for k, v := range state.pendingRequests {
		s.PendingRequests[k] = clonePendingRequest(v)
	}
	for k, v := range state.registrations {
		s.Registrations[k] = v
	}
	for k, v := range state.inventory {
		s.Inventory[k] = cloneInventoryItem(v)
	}
	for k, v := range state.equipment {
		s.Equipment[k] = cloneEquipment(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Samples {
		state.samples[k] = cloneSample(v)
	}
	for k, v := range s.Assays {
		state.assays[k] = cloneAssay(v)
	}
	for k, v := range s.PrepBatches {
		state.prepBatches[k] = clonePrepBatch(v)
	}
	for k, v := range s.Analytical {
		state.analytical[k] = cloneAnalyticalBatch(v)
	}
	for k, v := range s.Roles {
		state.roles[k] = cloneRole(v)
	}
	for k, v := range s.Users {
		state.users[k] = cloneUser(v)
	}
	for k, v := range s.PendingRequests {
		state.pendingRequests[k] = clonePendingRequest(v)
	}
	for k, v := range s.Registrations {
		state.registrations[k] = v
	}
	for k, v := range s.Inventory {
		state.inventory[k] = cloneInventoryItem(v)
	}
	for k, v := range s.Equipment {
		state.equipment[k] = cloneEquipment(v)
	}
	return state
}

// migrateSnapshot repairs referential integrity of an imported snapshot so a
// partially corrupted export still loads.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Samples == nil {
		snapshot.Samples = map[string]Sample{}
	}
	if snapshot.Assays == nil {
		snapshot.Assays = map[string]Assay{}
	}
	if snapshot.PrepBatches == nil {
		snapshot.PrepBatches = map[string]PrepBatch{}
	}
	if snapshot.Analytical == nil {
		snapshot.Analytical = map[string]AnalyticalBatch{}
	}
	if snapshot.Roles == nil {
		snapshot.Roles = map[string]RoleDefinition{}
	}
	if snapshot.Users == nil {
		snapshot.Users = map[string]User{}
	}
	if snapshot.PendingRequests == nil {
		snapshot.PendingRequests = map[string]PendingUserRequest{}
	}
	if snapshot.Registrations == nil {
		snapshot.Registrations = map[string]RegistrationRecord{}
	}
	if snapshot.Inventory == nil {
		snapshot.Inventory = map[string]InventoryItem{}
	}
	if snapshot.Equipment == nil {
		snapshot.Equipment = map[string]Equipment{}
	}

	sampleExists := func(id string) bool {
		_, ok := snapshot.Samples[id]
		return ok
	}
	prepExists := func(id string) bool {
		_, ok := snapshot.PrepBatches[id]
		return ok
	}
	analyticalExists := func(id string) bool {
		_, ok := snapshot.Analytical[id]
		return ok
	}

	for id, batch := range snapshot.PrepBatches {
		if filtered, changed := filterIDs(batch.SampleIDs, sampleExists); changed {
			batch.SampleIDs = filtered
		}
		snapshot.PrepBatches[id] = batch
	}
	for id, batch := range snapshot.Analytical {
		if filtered, changed := filterIDs(batch.PrepBatchIDs, prepExists); changed {
			batch.PrepBatchIDs = filtered
		}
		snapshot.Analytical[id] = batch
	}
	for id, sample := range snapshot.Samples {
		if sample.PrepBatchID != nil && !prepExists(*sample.PrepBatchID) {
			sample.PrepBatchID = nil
		}
		if sample.AnalyticalBatchID != nil && !analyticalExists(*sample.AnalyticalBatchID) {
			sample.AnalyticalBatchID = nil
		}
		snapshot.Samples[id] = sample
	}
	for username, reg := range snapshot.Registrations {
		if reg.Username == "" {
			reg.Username = username
			snapshot.Registrations[username] = reg
		}
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.samples {
		cloned.samples[k] = cloneSample(v)
	}
	for k, v := range s.assays {
		cloned.assays[k] = cloneAssay(v)
	}
	for k, v := range s.prepBatches {
		cloned.prepBatches[k] = clonePrepBatch(v)
	}
	for k, v := range s.analytical {
		cloned.analytical[k] = cloneAnalyticalBatch(v)
	}
	for k, v := range s.roles {
		cloned.roles[k] = cloneRole(v)
	}
	for k, v := range s.users {
		cloned.users[k] = cloneUser(v)
	}
	for k, v := range s.pendingRequests {
		cloned.pendingRequests[k] = clonePendingRequest(v)
	}
	for k, v := range s.registrations {
		cloned.registrations[k] = v
	}
	for k, v := range s.inventory {
		cloned.inventory[k] = cloneInventoryItem(v)
	}
	for k, v := range s.equipment {
		cloned.equipment[k] = cloneEquipment(v)
	}
	return cloned
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSample(s Sample) Sample {
	cp := s
	cp.MetrcID = cloneStringPtr(s.MetrcID)
	cp.TargetPotency = cloneFloatPtr(s.TargetPotency)
	cp.Weight = cloneFloatPtr(s.Weight)
	cp.Notes = cloneStringPtr(s.Notes)
	cp.PrepBatchID = cloneStringPtr(s.PrepBatchID)
	cp.AnalyticalBatchID = cloneStringPtr(s.AnalyticalBatchID)
	cp.RequiredTests = append([]string(nil), s.RequiredTests...)
	cp.Results = append([]domain.SampleResult(nil), s.Results...)
	if s.QCStatus != nil {
		v := *s.QCStatus
		cp.QCStatus = &v
	}
	return cp
}

func cloneAssay(a Assay) Assay {
	cp := a
	cp.Analytes = append([]domain.Analyte(nil), a.Analytes...)
	cp.QCTypes = append([]domain.QCType(nil), a.QCTypes...)
	if a.BatchSize != nil {
		v := *a.BatchSize
		cp.BatchSize = &v
	}
	cp.RevisionHistory = make([]domain.SOPRevision, len(a.RevisionHistory))
	for i, rev := range a.RevisionHistory {
		cp.RevisionHistory[i] = cloneRevision(rev)
	}
	return cp
}

func cloneRevision(rev domain.SOPRevision) domain.SOPRevision {
	cp := rev
	cp.Changes = append([]string(nil), rev.Changes...)
	cp.ApprovedBy = cloneStringPtr(rev.ApprovedBy)
	cp.ApprovalDate = cloneTimePtr(rev.ApprovalDate)
	if rev.Config != nil {
		cfg := domain.SOPConfig{
			Analytes: append([]domain.Analyte(nil), rev.Config.Analytes...),
			QCTypes:  append([]domain.QCType(nil), rev.Config.QCTypes...),
		}
		if rev.Config.BatchSize != nil {
			b := *rev.Config.BatchSize
			cfg.BatchSize = &b
		}
		cp.Config = &cfg
	}
	return cp
}

func clonePrepBatch(b PrepBatch) PrepBatch {
	cp := b
	cp.SampleIDs = append([]string(nil), b.SampleIDs...)
	cp.Reagents = append([]domain.ReagentUsage(nil), b.Reagents...)
	cp.EquipmentIDs = append([]string(nil), b.EquipmentIDs...)
	cp.ExtractionDate = cloneTimePtr(b.ExtractionDate)
	cp.Notes = cloneStringPtr(b.Notes)
	return cp
}

func cloneAnalyticalBatch(b AnalyticalBatch) AnalyticalBatch {
	cp := b
	cp.PrepBatchIDs = append([]string(nil), b.PrepBatchIDs...)
	cp.QCSamples = make([]domain.QCSample, len(b.QCSamples))
	for i, qc := range b.QCSamples {
		qcp := qc
		qcp.Expected = cloneFloatPtr(qc.Expected)
		qcp.Actual = cloneFloatPtr(qc.Actual)
		qcp.Recovery = cloneFloatPtr(qc.Recovery)
		cp.QCSamples[i] = qcp
	}
	cp.Results = append([]domain.SampleResult(nil), b.Results...)
	cp.DataFiles = append([]string(nil), b.DataFiles...)
	cp.Calibration.Blanks = append([]float64(nil), b.Calibration.Blanks...)
	cp.Calibration.Curves = make([]domain.CalibrationCurve, len(b.Calibration.Curves))
	for i, curve := range b.Calibration.Curves {
		cc := curve
		cc.Points = append([]domain.CalibrationPoint(nil), curve.Points...)
		cp.Calibration.Curves[i] = cc
	}
	return cp
}

func cloneRole(r RoleDefinition) RoleDefinition {
	cp := r
	cp.PermissionIDs = append([]string(nil), r.PermissionIDs...)
	cp.AssayType = cloneStringPtr(r.AssayType)
	return cp
}

func cloneUser(u User) User {
	cp := u
	cp.Roles = append([]domain.UserRole(nil), u.Roles...)
	return cp
}

func clonePendingRequest(p PendingUserRequest) PendingUserRequest {
	cp := p
	cp.Phone = cloneStringPtr(p.Phone)
	return cp
}

func cloneInventoryItem(i InventoryItem) InventoryItem {
	cp := i
	cp.Documents = append([]domain.DocumentRef(nil), i.Documents...)
	return cp
}

func cloneEquipment(e Equipment) Equipment {
	cp := e
	cp.LastCalibration = cloneTimePtr(e.LastCalibration)
	cp.NextCalibration = cloneTimePtr(e.NextCalibration)
	cp.MaintenanceHistory = make([]domain.MaintenanceRecord, len(e.MaintenanceHistory))
	for i, rec := range e.MaintenanceHistory {
		rcp := rec
		rcp.Cost = cloneFloatPtr(rec.Cost)
		cp.MaintenanceHistory[i] = rcp
	}
	return cp
}

func containsString(values []string, id string) bool {
	for _, existing := range values {
		if existing == id {
			return true
		}
	}
	return false
}

func filterIDs(values []string, exists func(string) bool) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	changed := false
	for _, v := range values {
		if _, ok := seen[v]; ok {
			changed = true
			continue
		}
		seen[v] = struct{}{}
		if !exists(v) {
			changed = true
			continue
		}
		out = append(out, v)
	}
	if !changed && len(out) == len(values) {
		return values, false
	}
	return out, true
}

// numericSuffix parses the trailing digit run of an id, reporting false when
// the id carries none.
func numericSuffix(id string) (int, bool) {
	end := len(id)
	start := end
	for start > 0 && id[start-1] >= '0' && id[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.Atoi(id[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider for deterministic timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetSample retrieves a sample by ID.
func (s *Store) GetSample(id string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sample, ok := s.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(sample), true
}

// ListSamples returns all samples.
func (s *Store) ListSamples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListSamples()
}

// GetAssay retrieves an assay by ID.
func (s *Store) GetAssay(id string) (Assay, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assay, ok := s.state.assays[id]
	if !ok {
		return Assay{}, false
	}
	return cloneAssay(assay), true
}

// ListAssays returns all assays.
func (s *Store) ListAssays() []Assay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAssays()
}

// GetPrepBatch retrieves a prep batch by ID.
func (s *Store) GetPrepBatch(id string) (PrepBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.state.prepBatches[id]
	if !ok {
		return PrepBatch{}, false
	}
	return clonePrepBatch(batch), true
}

// ListPrepBatches returns all prep batches.
func (s *Store) ListPrepBatches() []PrepBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPrepBatches()
}

// GetAnalyticalBatch retrieves an analytical batch by ID.
func (s *Store) GetAnalyticalBatch(id string) (AnalyticalBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.state.analytical[id]
	if !ok {
		return AnalyticalBatch{}, false
	}
	return cloneAnalyticalBatch(batch), true
}

// ListAnalyticalBatches returns all analytical batches.
func (s *Store) ListAnalyticalBatches() []AnalyticalBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListAnalyticalBatches()
}

// ListRoles returns all role definitions.
func (s *Store) ListRoles() []RoleDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListRoles()
}

// ListUsers returns all users.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListUsers()
}

// ListPendingRequests returns all pending account requests.
func (s *Store) ListPendingRequests() []PendingUserRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPendingRequests()
}

// ListInventoryItems returns all inventory items.
func (s *Store) ListInventoryItems() []InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListInventoryItems()
}

// GetEquipment retrieves an equipment record by ID.
func (s *Store) GetEquipment(id string) (Equipment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	equipment, ok := s.state.equipment[id]
	if !ok {
		return Equipment{}, false
	}
	return cloneEquipment(equipment), true
}

// ListEquipment returns all equipment records.
func (s *Store) ListEquipment() []Equipment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListEquipment()
}
