package core

import (
	"context"
	"errors"
	"testing"

	"limscore/pkg/domain"
)

func newAuthorizedFixture(t *testing.T) (*AuthorizedService, *Service) {
	t.Helper()
	svc := newTestService(t)
	authz := NewAuthorizedService(svc)
	ctx := context.Background()

	seedBoundedAssay(t, svc, "POT")
	seedBoundedAssay(t, svc, "HMT")

	if _, _, err := svc.CreateUser(ctx, User{
		Username: "dana",
		Roles:    []domain.UserRole{{Role: domain.RoleAdmin}},
	}); err != nil {
		t.Fatalf("create admin user: %v", err)
	}
	if _, _, err := svc.CreateUser(ctx, User{
		Username: "pat",
		Roles:    []domain.UserRole{{AssayType: "POT", Role: domain.RolePrep}},
	}); err != nil {
		t.Fatalf("create prep user: %v", err)
	}
	return authz, svc
}

func TestAuthorizationDeniesMissingActor(t *testing.T) {
	authz, _ := newAuthorizedFixture(t)

	_, _, err := authz.CreateAssay(context.Background(), Assay{Code: "PST", Name: "Pesticides"})
	var denied domain.PermissionError
	if !errors.As(err, &denied) {
		t.Fatalf("expected permission error for anonymous caller, got %v", err)
	}
	if denied.Permission != domain.PermAdminAssays {
		t.Fatalf("expected %s in denial, got %s", domain.PermAdminAssays, denied.Permission)
	}
}

func TestAuthorizationDeniesUnknownActor(t *testing.T) {
	authz, _ := newAuthorizedFixture(t)
	ctx := WithActor(context.Background(), "ghost")

	_, _, err := authz.RegisterSample(ctx, sampleFixture("POT"))
	var denied domain.PermissionError
	if !errors.As(err, &denied) {
		t.Fatalf("expected permission error for unknown actor, got %v", err)
	}
	if denied.Username != "ghost" {
		t.Fatalf("expected denial to name the actor, got %q", denied.Username)
	}
}

func TestAdminRoleGrantsEverything(t *testing.T) {
	authz, _ := newAuthorizedFixture(t)
	ctx := WithActor(context.Background(), "dana")

	if _, _, err := authz.CreateAssay(ctx, Assay{Code: "PST", Name: "Pesticides"}); err != nil {
		t.Fatalf("admin create assay: %v", err)
	}
	if _, _, err := authz.RegisterSample(ctx, sampleFixture("POT")); err != nil {
		t.Fatalf("admin register sample: %v", err)
	}
	if _, _, err := authz.CreateEquipment(ctx, Equipment{Name: "GC-01"}); err != nil {
		t.Fatalf("admin create equipment: %v", err)
	}
}

func TestPrepRoleIsAssayScoped(t *testing.T) {
	authz, svc := newAuthorizedFixture(t)
	adminCtx := WithActor(context.Background(), "dana")
	prepCtx := WithActor(context.Background(), "pat")

	potSamples := registerSamples(t, svc, "POT", 2)
	var hmtSamples []string
	for i := 0; i < 2; i++ {
		sample := sampleFixture("HMT")
		created, _, err := svc.RegisterSample(context.Background(), sample)
		if err != nil {
			t.Fatalf("register hmt sample: %v", err)
		}
		hmtSamples = append(hmtSamples, created.ID)
	}

	batch, _, err := authz.CreatePrepBatch(prepCtx, potSamples, "POT", "pat")
	if err != nil {
		t.Fatalf("prep user create batch in scope: %v", err)
	}

	var denied domain.PermissionError
	if _, _, err := authz.CreatePrepBatch(prepCtx, hmtSamples, "HMT", "pat"); !errors.As(err, &denied) {
		t.Fatalf("expected out-of-scope batch creation to be denied, got %v", err)
	}
	if denied.AssayType != "HMT" {
		t.Fatalf("expected denial scoped to HMT, got %q", denied.AssayType)
	}

	if _, _, err := authz.CreateAssay(prepCtx, Assay{Code: "MYC", Name: "Mycotoxins"}); !errors.As(err, &denied) {
		t.Fatalf("expected prep user to be denied assay administration, got %v", err)
	}

	if _, _, err := authz.RecordExtraction(prepCtx, batch.ID); err != nil {
		t.Fatalf("prep user record extraction in scope: %v", err)
	}
	if _, _, err := authz.AdvanceAnalyticalBatch(adminCtx, "AB999", domain.AnalyticalDataEntry); err == nil {
		t.Fatalf("expected advance of missing batch to fail")
	}
}

func TestInactiveUserIsDenied(t *testing.T) {
	authz, svc := newAuthorizedFixture(t)
	ctx := context.Background()

	users := svc.ListUsers()
	var pat User
	for _, u := range users {
		if u.Username == "pat" {
			pat = u
		}
	}
	if _, _, err := svc.UpdateUser(ctx, pat.ID, func(u *User) error {
		u.Active = false
		return nil
	}); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}

	var denied domain.PermissionError
	_, _, err := authz.CreatePrepBatch(WithActor(ctx, "pat"), []string{"S001"}, "POT", "pat")
	if !errors.As(err, &denied) {
		t.Fatalf("expected inactive user to be denied, got %v", err)
	}
}

func TestSubmitRegistrationIsOpen(t *testing.T) {
	authz, _ := newAuthorizedFixture(t)

	request, _, err := authz.SubmitRegistration(context.Background(), PendingUserRequest{
		Username: "newhire",
		Email:    "newhire@lab.example",
	}, "argon2:newhire")
	if err != nil {
		t.Fatalf("anonymous registration: %v", err)
	}
	if request.Status != domain.RequestPending {
		t.Fatalf("expected pending status, got %s", request.Status)
	}
}

func TestApprovalTransitionNeedsQCRights(t *testing.T) {
	authz, svc := newAuthorizedFixture(t)
	ctx := context.Background()

	if _, _, err := svc.CreateUser(ctx, User{
		Username: "ana",
		Roles:    []domain.UserRole{{AssayType: "POT", Role: domain.RoleAnalysis}},
	}); err != nil {
		t.Fatalf("create analysis user: %v", err)
	}

	prep := newReadyPrepBatch(t, svc, "POT", 2)
	batch, _, err := svc.CreateAnalyticalBatch(ctx, []string{prep.ID}, "POT", "ana", "HPLC-01")
	if err != nil {
		t.Fatalf("create analytical batch: %v", err)
	}

	anaCtx := WithActor(ctx, "ana")
	if _, _, err := authz.GenerateRunSequence(anaCtx, batch.ID); err != nil {
		t.Fatalf("analysis user generate sequence: %v", err)
	}
	if _, _, err := authz.AdvanceAnalyticalBatch(anaCtx, batch.ID, domain.AnalyticalDataEntry); err != nil {
		t.Fatalf("analysis user advance to data entry: %v", err)
	}

	var denied domain.PermissionError
	if _, _, err := authz.AdvanceAnalyticalBatch(anaCtx, batch.ID, domain.AnalyticalApproved); !errors.As(err, &denied) {
		t.Fatalf("expected approval without QC rights to be denied, got %v", err)
	}
	if denied.Permission != domain.PermQCApprove {
		t.Fatalf("expected QC approval permission in denial, got %s", denied.Permission)
	}
}
