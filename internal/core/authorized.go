package core

import (
	"context"
	"time"

	"limscore/pkg/domain"
)

// AuthorizedService wraps a Service with permission checks on every mutating
// operation. The acting user is taken from the context (WithActor); unknown or
// inactive actors are denied. Read operations pass through unchecked.
type AuthorizedService struct {
	svc *Service
}

// NewAuthorizedService wraps svc with authorization enforcement.
func NewAuthorizedService(svc *Service) *AuthorizedService {
	return &AuthorizedService{svc: svc}
}

// Service returns the wrapped, unchecked service.
func (a *AuthorizedService) Service() *Service {
	return a.svc
}

// authorize resolves the actor and checks one permission against an assay
// scope. An empty assayType means the operation is not assay scoped.
func (a *AuthorizedService) authorize(ctx context.Context, permissionID, assayType string) error {
	username := ActorFromContext(ctx)
	denied := domain.PermissionError{Username: username, Permission: permissionID, AssayType: assayType}
	if username == "" {
		return denied
	}
	var allowed bool
	err := a.svc.store.View(ctx, func(view domain.TransactionView) error {
		user, ok := view.FindUserByUsername(username)
		if !ok {
			return nil
		}
		allowed = domain.HasPermission(user, view.ListRoles(), permissionID, assayType)
		return nil
	})
	if err != nil {
		return err
	}
	if !allowed {
		return denied
	}
	return nil
}

func (a *AuthorizedService) prepBatchScope(id string) string {
	if batch, ok := a.svc.GetPrepBatch(id); ok {
		return batch.AssayCode
	}
	return ""
}

func (a *AuthorizedService) analyticalBatchScope(id string) string {
	if batch, ok := a.svc.GetAnalyticalBatch(id); ok {
		return batch.AssayCode
	}
	return ""
}

// RegisterSample requires sample creation rights.
func (a *AuthorizedService) RegisterSample(ctx context.Context, sample Sample) (Sample, Result, error) {
	if err := a.authorize(ctx, domain.PermSampleCreate, ""); err != nil {
		return Sample{}, Result{}, err
	}
	return a.svc.RegisterSample(ctx, sample)
}

// UpdateSample requires sample update rights.
func (a *AuthorizedService) UpdateSample(ctx context.Context, id string, mutator func(*Sample) error) (Sample, Result, error) {
	if err := a.authorize(ctx, domain.PermSampleUpdate, ""); err != nil {
		return Sample{}, Result{}, err
	}
	return a.svc.UpdateSample(ctx, id, mutator)
}

// CreatePrepBatch requires batch creation rights scoped to the assay.
func (a *AuthorizedService) CreatePrepBatch(ctx context.Context, sampleIDs []string, assayCode, analyst string) (PrepBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermBatchCreate, assayCode); err != nil {
		return PrepBatch{}, Result{}, err
	}
	return a.svc.CreatePrepBatch(ctx, sampleIDs, assayCode, analyst)
}

// RecordExtraction requires batch execution rights scoped to the batch assay.
func (a *AuthorizedService) RecordExtraction(ctx context.Context, batchID string) (PrepBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermBatchExecute, a.prepBatchScope(batchID)); err != nil {
		return PrepBatch{}, Result{}, err
	}
	return a.svc.RecordExtraction(ctx, batchID)
}

// AdvancePrepBatch requires batch execution rights scoped to the batch assay.
func (a *AuthorizedService) AdvancePrepBatch(ctx context.Context, batchID string, target domain.PrepBatchStatus) (PrepBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermBatchExecute, a.prepBatchScope(batchID)); err != nil {
		return PrepBatch{}, Result{}, err
	}
	return a.svc.AdvancePrepBatch(ctx, batchID, target)
}

// AttachReagent requires batch update rights scoped to the batch assay.
func (a *AuthorizedService) AttachReagent(ctx context.Context, batchID string, usage domain.ReagentUsage) (PrepBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermBatchUpdate, a.prepBatchScope(batchID)); err != nil {
		return PrepBatch{}, Result{}, err
	}
	return a.svc.AttachReagent(ctx, batchID, usage)
}

// AttachEquipment requires batch update rights scoped to the batch assay.
func (a *AuthorizedService) AttachEquipment(ctx context.Context, batchID, equipmentID string) (PrepBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermBatchUpdate, a.prepBatchScope(batchID)); err != nil {
		return PrepBatch{}, Result{}, err
	}
	return a.svc.AttachEquipment(ctx, batchID, equipmentID)
}

// CreateAnalyticalBatch requires analysis creation rights scoped to the assay.
func (a *AuthorizedService) CreateAnalyticalBatch(ctx context.Context, prepBatchIDs []string, assayCode, analyst, instrument string) (AnalyticalBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermAnalysisCreate, assayCode); err != nil {
		return AnalyticalBatch{}, Result{}, err
	}
	return a.svc.CreateAnalyticalBatch(ctx, prepBatchIDs, assayCode, analyst, instrument)
}

// GenerateRunSequence requires analysis execution rights scoped to the batch assay.
func (a *AuthorizedService) GenerateRunSequence(ctx context.Context, batchID string) ([]string, Result, error) {
	if err := a.authorize(ctx, domain.PermAnalysisExecute, a.analyticalBatchScope(batchID)); err != nil {
		return nil, Result{}, err
	}
	return a.svc.GenerateRunSequence(ctx, batchID)
}

// AdvanceAnalyticalBatch requires analysis execution rights; moving to
// Approved additionally requires QC approval rights.
func (a *AuthorizedService) AdvanceAnalyticalBatch(ctx context.Context, batchID string, target domain.AnalyticalBatchStatus) (AnalyticalBatch, Result, error) {
	scope := a.analyticalBatchScope(batchID)
	if err := a.authorize(ctx, domain.PermAnalysisExecute, scope); err != nil {
		return AnalyticalBatch{}, Result{}, err
	}
	if target == domain.AnalyticalApproved {
		if err := a.authorize(ctx, domain.PermQCApprove, scope); err != nil {
			return AnalyticalBatch{}, Result{}, err
		}
	}
	return a.svc.AdvanceAnalyticalBatch(ctx, batchID, target)
}

// RecordQCSample requires QC update rights scoped to the batch assay.
func (a *AuthorizedService) RecordQCSample(ctx context.Context, batchID, qcTypeID, analyte string, expected, actual *float64) (QCSample, Result, error) {
	if err := a.authorize(ctx, domain.PermQCUpdate, a.analyticalBatchScope(batchID)); err != nil {
		return QCSample{}, Result{}, err
	}
	return a.svc.RecordQCSample(ctx, batchID, qcTypeID, analyte, expected, actual)
}

// RecordCalibration requires analysis update rights scoped to the batch assay.
func (a *AuthorizedService) RecordCalibration(ctx context.Context, batchID string, data domain.CalibrationData) (AnalyticalBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermAnalysisUpdate, a.analyticalBatchScope(batchID)); err != nil {
		return AnalyticalBatch{}, Result{}, err
	}
	return a.svc.RecordCalibration(ctx, batchID, data)
}

// RecordSampleResult requires analysis update rights scoped to the batch assay.
func (a *AuthorizedService) RecordSampleResult(ctx context.Context, batchID string, result SampleResult) (AnalyticalBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermAnalysisUpdate, a.analyticalBatchScope(batchID)); err != nil {
		return AnalyticalBatch{}, Result{}, err
	}
	return a.svc.RecordSampleResult(ctx, batchID, result)
}

// IngestDataFile requires analysis update rights scoped to the batch assay.
func (a *AuthorizedService) IngestDataFile(ctx context.Context, batchID, filename string) (AnalyticalBatch, Result, error) {
	if err := a.authorize(ctx, domain.PermAnalysisUpdate, a.analyticalBatchScope(batchID)); err != nil {
		return AnalyticalBatch{}, Result{}, err
	}
	return a.svc.IngestDataFile(ctx, batchID, filename)
}

// CreateAssay requires assay administration rights.
func (a *AuthorizedService) CreateAssay(ctx context.Context, assay Assay) (Assay, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminAssays, ""); err != nil {
		return Assay{}, Result{}, err
	}
	return a.svc.CreateAssay(ctx, assay)
}

// UpdateAssay requires assay administration rights.
func (a *AuthorizedService) UpdateAssay(ctx context.Context, id string, mutator func(*Assay) error) (Assay, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminAssays, ""); err != nil {
		return Assay{}, Result{}, err
	}
	return a.svc.UpdateAssay(ctx, id, mutator)
}

// DeleteAssay requires assay administration rights.
func (a *AuthorizedService) DeleteAssay(ctx context.Context, id string) (Result, error) {
	if err := a.authorize(ctx, domain.PermAdminAssays, ""); err != nil {
		return Result{}, err
	}
	return a.svc.DeleteAssay(ctx, id)
}

// AddSOPRevision requires assay administration rights.
func (a *AuthorizedService) AddSOPRevision(ctx context.Context, assayID string, revision SOPRevision) (Assay, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminAssays, ""); err != nil {
		return Assay{}, Result{}, err
	}
	return a.svc.AddSOPRevision(ctx, assayID, revision)
}

// ActivateSOPRevision requires assay administration rights.
func (a *AuthorizedService) ActivateSOPRevision(ctx context.Context, assayID, revisionID, approver string) (Assay, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminAssays, ""); err != nil {
		return Assay{}, Result{}, err
	}
	return a.svc.ActivateSOPRevision(ctx, assayID, revisionID, approver)
}

// CreateRole requires role administration rights.
func (a *AuthorizedService) CreateRole(ctx context.Context, role RoleDefinition) (RoleDefinition, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminRoles, ""); err != nil {
		return RoleDefinition{}, Result{}, err
	}
	return a.svc.CreateRole(ctx, role)
}

// EditRole requires role administration rights.
func (a *AuthorizedService) EditRole(ctx context.Context, id string, mutator func(*RoleDefinition) error) (RoleDefinition, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminRoles, ""); err != nil {
		return RoleDefinition{}, Result{}, err
	}
	return a.svc.EditRole(ctx, id, mutator)
}

// DeleteRole requires role administration rights.
func (a *AuthorizedService) DeleteRole(ctx context.Context, id string) (Result, error) {
	if err := a.authorize(ctx, domain.PermAdminRoles, ""); err != nil {
		return Result{}, err
	}
	return a.svc.DeleteRole(ctx, id)
}

// SubmitRegistration is open to unauthenticated callers; it is how accounts
// come to exist.
func (a *AuthorizedService) SubmitRegistration(ctx context.Context, request PendingUserRequest, passwordHash string) (PendingUserRequest, Result, error) {
	return a.svc.SubmitRegistration(ctx, request, passwordHash)
}

// ApproveUser requires user administration rights.
func (a *AuthorizedService) ApproveUser(ctx context.Context, requestID string) (User, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminUsers, ""); err != nil {
		return User{}, Result{}, err
	}
	return a.svc.ApproveUser(ctx, requestID)
}

// RejectUser requires user administration rights.
func (a *AuthorizedService) RejectUser(ctx context.Context, requestID string) (PendingUserRequest, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminUsers, ""); err != nil {
		return PendingUserRequest{}, Result{}, err
	}
	return a.svc.RejectUser(ctx, requestID)
}

// CreateUser requires user administration rights.
func (a *AuthorizedService) CreateUser(ctx context.Context, user User) (User, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminUsers, ""); err != nil {
		return User{}, Result{}, err
	}
	return a.svc.CreateUser(ctx, user)
}

// UpdateUser requires user administration rights.
func (a *AuthorizedService) UpdateUser(ctx context.Context, id string, mutator func(*User) error) (User, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminUsers, ""); err != nil {
		return User{}, Result{}, err
	}
	return a.svc.UpdateUser(ctx, id, mutator)
}

// DeleteUser requires user administration rights.
func (a *AuthorizedService) DeleteUser(ctx context.Context, id string) (Result, error) {
	if err := a.authorize(ctx, domain.PermAdminUsers, ""); err != nil {
		return Result{}, err
	}
	return a.svc.DeleteUser(ctx, id)
}

// CreateInventoryItem requires system administration rights.
func (a *AuthorizedService) CreateInventoryItem(ctx context.Context, item InventoryItem) (InventoryItem, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminSystem, ""); err != nil {
		return InventoryItem{}, Result{}, err
	}
	return a.svc.CreateInventoryItem(ctx, item)
}

// UpdateInventoryItem requires system administration rights.
func (a *AuthorizedService) UpdateInventoryItem(ctx context.Context, id string, mutator func(*InventoryItem) error) (InventoryItem, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminSystem, ""); err != nil {
		return InventoryItem{}, Result{}, err
	}
	return a.svc.UpdateInventoryItem(ctx, id, mutator)
}

// DeleteInventoryItem requires system administration rights.
func (a *AuthorizedService) DeleteInventoryItem(ctx context.Context, id string) (Result, error) {
	if err := a.authorize(ctx, domain.PermAdminSystem, ""); err != nil {
		return Result{}, err
	}
	return a.svc.DeleteInventoryItem(ctx, id)
}

// CreateEquipment requires system administration rights.
func (a *AuthorizedService) CreateEquipment(ctx context.Context, equipment Equipment) (Equipment, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminSystem, ""); err != nil {
		return Equipment{}, Result{}, err
	}
	return a.svc.CreateEquipment(ctx, equipment)
}

// UpdateEquipment requires system administration rights.
func (a *AuthorizedService) UpdateEquipment(ctx context.Context, id string, mutator func(*Equipment) error) (Equipment, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminSystem, ""); err != nil {
		return Equipment{}, Result{}, err
	}
	return a.svc.UpdateEquipment(ctx, id, mutator)
}

// DeleteEquipment requires system administration rights.
func (a *AuthorizedService) DeleteEquipment(ctx context.Context, id string) (Result, error) {
	if err := a.authorize(ctx, domain.PermAdminSystem, ""); err != nil {
		return Result{}, err
	}
	return a.svc.DeleteEquipment(ctx, id)
}

// RecordEquipmentMaintenance requires system administration rights.
func (a *AuthorizedService) RecordEquipmentMaintenance(ctx context.Context, id string, record domain.MaintenanceRecord) (Equipment, Result, error) {
	if err := a.authorize(ctx, domain.PermAdminSystem, ""); err != nil {
		return Equipment{}, Result{}, err
	}
	return a.svc.RecordEquipmentMaintenance(ctx, id, record)
}

// ResolveEffectiveConfig passes through; configuration resolution is a read.
func (a *AuthorizedService) ResolveEffectiveConfig(ctx context.Context, code string, asOf time.Time) (SOPConfig, error) {
	return a.svc.ResolveEffectiveConfig(ctx, code, asOf)
}
