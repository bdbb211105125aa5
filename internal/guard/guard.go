// Package guard holds the authorization gates evaluated after an access token
// validates. Gates run cheapest first and the first failure wins; reasons are
// about the caller's own scope and never disclose whether a target exists.
package guard

import (
	"context"
	"errors"

	"kindertrack/auth-identity/internal/auth"
	"kindertrack/auth-identity/internal/model"
)

var (
	ErrNotPermitted   = errors.New("you do not have permission to perform this action")
	ErrNoSchool       = errors.New("no school associated with your account")
	ErrSchoolMismatch = errors.New("you do not have access to this school's resources")
	ErrNotAssigned    = errors.New("you are not assigned to this class")
	ErrNotLinked      = errors.New("you are not linked to this student")
)

// Forbidden reports whether err is a gate refusal, as opposed to a storage
// failure that should propagate as fatal.
func Forbidden(err error) bool {
	return errors.Is(err, ErrNotPermitted) ||
		errors.Is(err, ErrNoSchool) ||
		errors.Is(err, ErrSchoolMismatch) ||
		errors.Is(err, ErrNotAssigned) ||
		errors.Is(err, ErrNotLinked)
}

// RelationStore resolves the assignment and link relations the role-specific
// gates depend on.
type RelationStore interface {
	TeacherAssignedToClass(ctx context.Context, userID, classID string) (bool, error)
	ParentLinkedToStudent(ctx context.Context, userID, studentID string) (bool, error)
	ParentHasStudentInClass(ctx context.Context, userID, classID string) (bool, error)
}

func RequireRole(claims *auth.Claims, allowed ...model.Role) error {
	for _, role := range allowed {
		if claims.Role == role {
			return nil
		}
	}
	return ErrNotPermitted
}

// RequireSchoolAccess is the tenant-ownership gate. Admins pass regardless of
// school; every other role must carry a school id matching the resource's.
func RequireSchoolAccess(claims *auth.Claims, schoolID string) error {
	if claims.Role == model.RoleAdmin {
		return nil
	}
	if claims.SchoolID == nil {
		return ErrNoSchool
	}
	if *claims.SchoolID != schoolID {
		return ErrSchoolMismatch
	}
	return nil
}

// RequireClassWrite gates mutation of a class. Teachers must hold an explicit
// assignment; admins and directors passed the earlier gates already.
func RequireClassWrite(ctx context.Context, store RelationStore, claims *auth.Claims, classID string) error {
	if claims.Role != model.RoleTeacher {
		return nil
	}
	assigned, err := store.TeacherAssignedToClass(ctx, claims.UserID, classID)
	if err != nil {
		return err
	}
	if !assigned {
		return ErrNotAssigned
	}
	return nil
}

// RequireClassRead gates reads of a class. Parents may only see classes that
// contain one of their linked students.
func RequireClassRead(ctx context.Context, store RelationStore, claims *auth.Claims, classID string) error {
	if claims.Role != model.RoleParent {
		return nil
	}
	linked, err := store.ParentHasStudentInClass(ctx, claims.UserID, classID)
	if err != nil {
		return err
	}
	if !linked {
		return ErrNotLinked
	}
	return nil
}

// RequireStudentRead gates reads of a student. Parents may only see students
// they are linked to.
func RequireStudentRead(ctx context.Context, store RelationStore, claims *auth.Claims, studentID string) error {
	if claims.Role != model.RoleParent {
		return nil
	}
	linked, err := store.ParentLinkedToStudent(ctx, claims.UserID, studentID)
	if err != nil {
		return err
	}
	if !linked {
		return ErrNotLinked
	}
	return nil
}
