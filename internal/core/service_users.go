package core

import (
	"context"
	"strings"

	"limscore/pkg/domain"
)

// baselineAdminUsername names the protected administrator account. It can
// never be deleted, regardless of caller privilege.
const baselineAdminUsername = "admin"

// SubmitRegistration records a self-registration request along with its
// credential material. The request waits for administrator review.
func (s *Service) SubmitRegistration(ctx context.Context, request PendingUserRequest, passwordHash string) (PendingUserRequest, Result, error) {
	var created PendingUserRequest
	res, err := s.run(ctx, "submit_registration", &created.ID, func(tx domain.Transaction) error {
		request.Username = strings.TrimSpace(request.Username)
		if request.Username == "" {
			return ValidationError{Field: "username", Reason: "must not be blank"}
		}
		if strings.TrimSpace(request.Email) == "" {
			return ValidationError{Field: "email", Reason: "must not be blank"}
		}
		if passwordHash == "" {
			return ValidationError{Field: "password", Reason: "credential material is required"}
		}
		view := tx.Snapshot()
		if _, exists := view.FindUserByUsername(request.Username); exists {
			return ValidationError{Field: "username", Reason: "username " + request.Username + " already in use"}
		}
		for _, pending := range view.ListPendingRequests() {
			if pending.Username == request.Username && pending.Status == domain.RequestPending {
				return ValidationError{Field: "username", Reason: "a request for " + request.Username + " is already pending"}
			}
		}
		request.Status = domain.RequestPending
		if request.RequestDate.IsZero() {
			request.RequestDate = s.clock()
		}
		var err error
		created, err = tx.CreatePendingRequest(request)
		if err != nil {
			return err
		}
		_, err = tx.CreateRegistration(RegistrationRecord{
			Username:     request.Username,
			PasswordHash: passwordHash,
			SubmittedAt:  request.RequestDate,
		})
		return err
	})
	return created, res, err
}

// ApproveUser converts a pending request into an active account. The
// registration record captured at submission must exist; approval without it
// fails rather than granting access on guessed credentials. The new account
// gets a fresh id and a default prep role scoped to the first assay on file.
func (s *Service) ApproveUser(ctx context.Context, requestID string) (User, Result, error) {
	var approved User
	res, err := s.run(ctx, "approve_user", &approved.ID, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		request, ok := view.FindPendingRequest(requestID)
		if !ok {
			return ErrNotFound{Entity: EntityPendingUser, ID: requestID}
		}
		if request.Status != domain.RequestPending {
			return ValidationError{Field: "status", Reason: "request " + requestID + " is already " + string(request.Status)}
		}
		if _, ok := view.FindRegistration(request.Username); !ok {
			return ErrNotFound{Entity: EntityRegistration, ID: request.Username}
		}
		user := User{
			Base:      Base{ID: tx.NextUserID()},
			Username:  request.Username,
			Email:     request.Email,
			FirstName: request.FirstName,
			LastName:  request.LastName,
			Roles:     []UserRole{{AssayType: defaultAssayScope(view), Role: domain.RolePrep}},
			Active:    true,
		}
		var err error
		approved, err = tx.CreateUser(user)
		if err != nil {
			return err
		}
		return tx.DeletePendingRequest(requestID)
	})
	return approved, res, err
}

// RejectUser marks a pending request Rejected. The record is retained for the
// review trail; its registration credential is discarded.
func (s *Service) RejectUser(ctx context.Context, requestID string) (PendingUserRequest, Result, error) {
	var rejected PendingUserRequest
	res, err := s.run(ctx, "reject_user", &requestID, func(tx domain.Transaction) error {
		var err error
		rejected, err = tx.UpdatePendingRequest(requestID, func(p *PendingUserRequest) error {
			if p.Status != domain.RequestPending {
				return ValidationError{Field: "status", Reason: "request " + requestID + " is already " + string(p.Status)}
			}
			p.Status = domain.RequestRejected
			return nil
		})
		if err != nil {
			return err
		}
		if _, ok := tx.Snapshot().FindRegistration(rejected.Username); ok {
			return tx.DeleteRegistration(rejected.Username)
		}
		return nil
	})
	return rejected, res, err
}

// CreateUser records an account directly, bypassing the approval pipeline.
// Intended for administrator-driven onboarding.
func (s *Service) CreateUser(ctx context.Context, user User) (User, Result, error) {
	var created User
	res, err := s.run(ctx, "create_user", &created.ID, func(tx domain.Transaction) error {
		user.Username = strings.TrimSpace(user.Username)
		if user.Username == "" {
			return ValidationError{Field: "username", Reason: "must not be blank"}
		}
		user.Active = true
		var err error
		created, err = tx.CreateUser(user)
		return err
	})
	return created, res, err
}

// UpdateUser mutates a user account using the provided mutator.
func (s *Service) UpdateUser(ctx context.Context, id string, mutator func(*User) error) (User, Result, error) {
	var updated User
	res, err := s.run(ctx, "update_user", &id, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateUser(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteUser removes an account and any credential material stored for it.
// The baseline administrator account is protected unconditionally.
func (s *Service) DeleteUser(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_user", &id, func(tx domain.Transaction) error {
		user, ok := tx.Snapshot().FindUser(id)
		if !ok {
			return ErrNotFound{Entity: EntityUser, ID: id}
		}
		if user.Username == baselineAdminUsername {
			return domain.InvariantViolationError{Invariant: "baseline administrator", Reason: "the " + baselineAdminUsername + " account cannot be deleted"}
		}
		if err := tx.DeleteUser(id); err != nil {
			return err
		}
		if _, ok := tx.Snapshot().FindRegistration(user.Username); ok {
			return tx.DeleteRegistration(user.Username)
		}
		return nil
	})
}

// ListUsers returns all accounts ordered by id.
func (s *Service) ListUsers() []User {
	return s.store.ListUsers()
}

// ListPendingRequests returns all pending account requests ordered by id.
func (s *Service) ListPendingRequests() []PendingUserRequest {
	return s.store.ListPendingRequests()
}

// defaultAssayScope picks the assay scope for a newly approved account: the
// first assay code on file, or POT when no assays exist yet.
func defaultAssayScope(view domain.TransactionView) string {
	assays := view.ListAssays()
	if len(assays) > 0 {
		return assays[0].Code
	}
	return "POT"
}
