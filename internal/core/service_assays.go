package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"limscore/pkg/domain"
)

// CreateAssay validates and records a new assay definition. Creation cascades
// two system roles scoped to the assay code: one for sample preparation and
// one for analysis.
func (s *Service) CreateAssay(ctx context.Context, assay Assay) (Assay, Result, error) {
	var created Assay
	res, err := s.run(ctx, "create_assay", &created.ID, func(tx domain.Transaction) error {
		assay.Code = strings.ToUpper(strings.TrimSpace(assay.Code))
		if err := validateAssayCode(assay.Code); err != nil {
			return err
		}
		if strings.TrimSpace(assay.Name) == "" {
			return ValidationError{Field: "name", Reason: "must not be blank"}
		}
		for _, existing := range tx.Snapshot().ListAssays() {
			if strings.EqualFold(existing.Code, assay.Code) {
				return ValidationError{Field: "code", Reason: "assay code " + assay.Code + " already exists"}
			}
		}
		if assay.SOPVersion == "" {
			assay.SOPVersion = "1.0"
		}
		assay.Active = true
		var err error
		created, err = tx.CreateAssay(assay)
		if err != nil {
			return err
		}
		return createSystemRoles(tx, created.Code)
	})
	return created, res, err
}

// UpdateAssay mutates an assay using the provided mutator.
func (s *Service) UpdateAssay(ctx context.Context, id string, mutator func(*Assay) error) (Assay, Result, error) {
	var updated Assay
	res, err := s.run(ctx, "update_assay", &id, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateAssay(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteAssay removes an assay and its generated system roles. Deletion fails
// when any batch references the assay code or a user still holds one of the
// assay's system roles.
func (s *Service) DeleteAssay(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_assay", &id, func(tx domain.Transaction) error {
		assay, ok := tx.Snapshot().FindAssay(id)
		if !ok {
			return ErrNotFound{Entity: EntityAssay, ID: id}
		}
		if err := tx.DeleteAssay(id); err != nil {
			return err
		}
		for _, role := range tx.Snapshot().ListRoles() {
			if role.IsSystemRole && role.AssayType != nil && *role.AssayType == assay.Code {
				if err := tx.DeleteRole(role.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AddSOPRevision appends a revision to the assay's history. The revision
// status defaults to Draft; activation is a separate, explicit step.
func (s *Service) AddSOPRevision(ctx context.Context, assayID string, revision SOPRevision) (Assay, Result, error) {
	var updated Assay
	res, err := s.run(ctx, "add_sop_revision", &assayID, func(tx domain.Transaction) error {
		if strings.TrimSpace(revision.Version) == "" {
			return ValidationError{Field: "version", Reason: "must not be blank"}
		}
		if revision.EffectiveDate.IsZero() {
			return ValidationError{Field: "effective_date", Reason: "must be set"}
		}
		if revision.Status == "" {
			revision.Status = domain.RevisionDraft
		}
		var err error
		updated, err = tx.UpdateAssay(assayID, func(a *Assay) error {
			if revision.RevisionID == "" {
				revision.RevisionID = fmt.Sprintf("%s-rev-%d", strings.ToLower(a.Code), len(a.RevisionHistory)+1)
			}
			for _, existing := range a.RevisionHistory {
				if existing.RevisionID == revision.RevisionID {
					return ValidationError{Field: "revision_id", Reason: "revision " + revision.RevisionID + " already exists"}
				}
			}
			a.RevisionHistory = append(a.RevisionHistory, revision)
			return nil
		})
		return err
	})
	return updated, res, err
}

// ActivateSOPRevision marks the named revision Active and supersedes any
// previously Active revision, keeping at most one Active revision per assay.
// The assay's SOP version string follows the activated revision.
func (s *Service) ActivateSOPRevision(ctx context.Context, assayID, revisionID string, approver string) (Assay, Result, error) {
	var updated Assay
	res, err := s.run(ctx, "activate_sop_revision", &assayID, func(tx domain.Transaction) error {
		now := s.clock()
		var err error
		updated, err = tx.UpdateAssay(assayID, func(a *Assay) error {
			found := false
			for i := range a.RevisionHistory {
				rev := &a.RevisionHistory[i]
				if rev.RevisionID == revisionID {
					rev.Status = domain.RevisionActive
					if approver != "" {
						rev.ApprovedBy = &approver
						approvedAt := now
						rev.ApprovalDate = &approvedAt
					}
					a.SOPVersion = rev.Version
					found = true
					continue
				}
				if rev.Status == domain.RevisionActive {
					rev.Status = domain.RevisionSuperseded
				}
			}
			if !found {
				return ValidationError{Field: "revision_id", Reason: "revision " + revisionID + " not found"}
			}
			return nil
		})
		return err
	})
	return updated, res, err
}

// ResolveEffectiveConfig returns the analytical configuration in force for the
// assay code at asOf. The resolution is pure and reads committed state only.
func (s *Service) ResolveEffectiveConfig(ctx context.Context, code string, asOf time.Time) (SOPConfig, error) {
	var cfg SOPConfig
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		assay, ok := view.FindAssayByCode(code)
		if !ok {
			return ErrNotFound{Entity: EntityAssay, ID: code}
		}
		cfg = domain.ResolveEffectiveConfig(assay, asOf)
		return nil
	})
	return cfg, err
}

// GetAssay returns an assay by id.
func (s *Service) GetAssay(id string) (Assay, bool) {
	return s.store.GetAssay(id)
}

// ListAssays returns all assays ordered by code.
func (s *Service) ListAssays() []Assay {
	return s.store.ListAssays()
}

// FindAssayByCode resolves an assay by its code.
func (s *Service) FindAssayByCode(ctx context.Context, code string) (Assay, bool) {
	var assay Assay
	found := false
	_ = s.store.View(ctx, func(view domain.TransactionView) error {
		assay, found = view.FindAssayByCode(code)
		return nil
	})
	return assay, found
}

func validateAssayCode(code string) error {
	if len(code) < 2 || len(code) > 4 {
		return ValidationError{Field: "code", Reason: "must be 2 to 4 characters"}
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ValidationError{Field: "code", Reason: "must be uppercase letters"}
		}
	}
	return nil
}

func createSystemRoles(tx domain.Transaction, code string) error {
	scope := code
	lower := strings.ToLower(code)
	roles := []RoleDefinition{
		{
			Base:          Base{ID: "role-" + lower + "-prep"},
			Name:          code + " - Sample Preparation",
			Description:   "Sample preparation duties for the " + code + " assay",
			Kind:          domain.RolePrep,
			PermissionIDs: domain.PrepRolePermissionIDs(),
			IsSystemRole:  true,
			AssayType:     &scope,
		},
		{
			Base:          Base{ID: "role-" + lower + "-analysis"},
			Name:          code + " - Analysis",
			Description:   "Analytical duties for the " + code + " assay",
			Kind:          domain.RoleAnalysis,
			PermissionIDs: domain.AnalysisRolePermissionIDs(),
			IsSystemRole:  true,
			AssayType:     &scope,
		},
	}
	for _, role := range roles {
		if _, err := tx.CreateRole(role); err != nil {
			return err
		}
	}
	return nil
}
