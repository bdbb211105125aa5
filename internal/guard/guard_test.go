package guard

import (
	"context"
	"errors"
	"testing"

	"kindertrack/auth-identity/internal/auth"
	"kindertrack/auth-identity/internal/model"
)

type fakeRelations struct {
	assigned map[string]bool
	linked   map[string]bool
	inClass  map[string]bool
	err      error
}

func (f *fakeRelations) TeacherAssignedToClass(_ context.Context, userID, classID string) (bool, error) {
	return f.assigned[userID+"/"+classID], f.err
}

func (f *fakeRelations) ParentLinkedToStudent(_ context.Context, userID, studentID string) (bool, error) {
	return f.linked[userID+"/"+studentID], f.err
}

func (f *fakeRelations) ParentHasStudentInClass(_ context.Context, userID, classID string) (bool, error) {
	return f.inClass[userID+"/"+classID], f.err
}

func claimsFor(role model.Role, schoolID string) *auth.Claims {
	claims := &auth.Claims{UserID: "user-1", Role: role}
	if schoolID != "" {
		claims.SchoolID = &schoolID
	}
	return claims
}

func TestRequireRole(t *testing.T) {
	if err := RequireRole(claimsFor(model.RoleTeacher, "s1"), model.RoleAdmin, model.RoleTeacher); err != nil {
		t.Fatalf("expected teacher to pass: %v", err)
	}
	err := RequireRole(claimsFor(model.RoleParent, "s1"), model.RoleAdmin, model.RoleDirector)
	if !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("expected ErrNotPermitted, got %v", err)
	}
}

func TestRequireSchoolAccess(t *testing.T) {
	// Admin passes with no school at all.
	if err := RequireSchoolAccess(claimsFor(model.RoleAdmin, ""), "s1"); err != nil {
		t.Fatalf("admin must bypass ownership: %v", err)
	}
	if err := RequireSchoolAccess(claimsFor(model.RoleDirector, "s1"), "s1"); err != nil {
		t.Fatalf("matching school must pass: %v", err)
	}
	if err := RequireSchoolAccess(claimsFor(model.RoleDirector, "s2"), "s1"); !errors.Is(err, ErrSchoolMismatch) {
		t.Fatalf("expected ErrSchoolMismatch, got %v", err)
	}
	// A non-admin with no school always fails, for every role.
	for _, role := range []model.Role{model.RoleDirector, model.RoleTeacher, model.RoleParent} {
		if err := RequireSchoolAccess(claimsFor(role, ""), "s1"); !errors.Is(err, ErrNoSchool) {
			t.Fatalf("%s with nil school: expected ErrNoSchool, got %v", role, err)
		}
	}
}

func TestRequireClassWrite(t *testing.T) {
	store := &fakeRelations{assigned: map[string]bool{"user-1/c1": true}}

	if err := RequireClassWrite(context.Background(), store, claimsFor(model.RoleTeacher, "s1"), "c1"); err != nil {
		t.Fatalf("assigned teacher must pass: %v", err)
	}
	if err := RequireClassWrite(context.Background(), store, claimsFor(model.RoleTeacher, "s1"), "c2"); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
	// Non-teacher roles are not subject to the assignment gate.
	if err := RequireClassWrite(context.Background(), store, claimsFor(model.RoleDirector, "s1"), "c2"); err != nil {
		t.Fatalf("director must not hit the assignment gate: %v", err)
	}
}

func TestRequireClassRead(t *testing.T) {
	store := &fakeRelations{inClass: map[string]bool{"user-1/c1": true}}

	if err := RequireClassRead(context.Background(), store, claimsFor(model.RoleParent, "s1"), "c1"); err != nil {
		t.Fatalf("linked parent must pass: %v", err)
	}
	if err := RequireClassRead(context.Background(), store, claimsFor(model.RoleParent, "s1"), "c2"); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
	if err := RequireClassRead(context.Background(), store, claimsFor(model.RoleTeacher, "s1"), "c2"); err != nil {
		t.Fatalf("teacher reads are not link-gated: %v", err)
	}
}

func TestRequireStudentRead(t *testing.T) {
	store := &fakeRelations{linked: map[string]bool{"user-1/st1": true}}

	if err := RequireStudentRead(context.Background(), store, claimsFor(model.RoleParent, "s1"), "st1"); err != nil {
		t.Fatalf("linked parent must pass: %v", err)
	}
	if err := RequireStudentRead(context.Background(), store, claimsFor(model.RoleParent, "s1"), "st2"); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked, got %v", err)
	}
}

func TestStoreErrorIsNotForbidden(t *testing.T) {
	boom := errors.New("storage down")
	store := &fakeRelations{err: boom}

	err := RequireClassWrite(context.Background(), store, claimsFor(model.RoleTeacher, "s1"), "c1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage error to propagate, got %v", err)
	}
	if Forbidden(err) {
		t.Fatalf("storage errors must not classify as forbidden")
	}
}
