package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kindertrack/auth-identity/internal/model"
)

// ErrNotFound is returned instead of pgx.ErrNoRows so callers never depend on
// the driver.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const userColumns = `id, email, password_hash, first_name, last_name, role, school_id, phone, address, created_at, is_deleted`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.SchoolID,
		&user.Phone,
		&user.Address,
		&user.CreatedAt,
		&user.Deleted,
	)
	return user, mapErr(err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 AND is_deleted = FALSE
	`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND is_deleted = FALSE
	`, userID)
	return scanUser(row)
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND is_deleted = FALSE)
	`, email).Scan(&exists)
	return exists, err
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, school_id, phone, address, created_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role, user.SchoolID, user.Phone, user.Address, user.CreatedAt)
	return err
}

func (s *Store) SoftDeleteUser(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET is_deleted = TRUE WHERE id = $1 AND is_deleted = FALSE
	`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UpdateContactInfo(ctx context.Context, userID string, phone, address *string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET phone = COALESCE($2, phone), address = COALESCE($3, address)
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING `+userColumns+`
	`, userID, phone, address)
	return scanUser(row)
}

func (s *Store) SchoolExists(ctx context.Context, schoolID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM schools WHERE id = $1 AND is_deleted = FALSE)
	`, schoolID).Scan(&exists)
	return exists, err
}

// --- refresh tokens ---

func (s *Store) CreateRefreshToken(ctx context.Context, token model.RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt)
	return err
}

// FindActiveRefreshToken looks up a non-revoked token by hash, excluding
// tokens whose owner has been soft-deleted. Expiry is the caller's concern.
func (s *Store) FindActiveRefreshToken(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var token model.RefreshToken
	row := s.pool.QueryRow(ctx, `
		SELECT rt.id, rt.user_id, rt.token_hash, rt.created_at, rt.expires_at, rt.revoked
		FROM refresh_tokens rt
		JOIN users u ON u.id = rt.user_id
		WHERE rt.token_hash = $1 AND rt.revoked = FALSE AND u.is_deleted = FALSE
	`, tokenHash)
	err := row.Scan(&token.ID, &token.UserID, &token.TokenHash, &token.CreatedAt, &token.ExpiresAt, &token.Revoked)
	return token, mapErr(err)
}

// RevokeRefreshToken flips a token to revoked. The revoked = FALSE guard makes
// the write conditional: of two concurrent rotations presenting the same token
// exactly one observes true.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1 AND revoked = FALSE
	`, tokenID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RevokeAllUserTokens(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- relations used by the authorization gates ---

func (s *Store) TeacherAssignedToClass(ctx context.Context, userID, classID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM teacher_classes tc
			JOIN classes c ON c.id = tc.class_id
			WHERE tc.user_id = $1 AND tc.class_id = $2 AND c.is_deleted = FALSE
		)
	`, userID, classID).Scan(&exists)
	return exists, err
}

func (s *Store) ParentLinkedToStudent(ctx context.Context, userID, studentID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM student_parents sp
			JOIN students st ON st.id = sp.student_id
			WHERE sp.user_id = $1 AND sp.student_id = $2 AND st.is_deleted = FALSE
		)
	`, userID, studentID).Scan(&exists)
	return exists, err
}

func (s *Store) ParentHasStudentInClass(ctx context.Context, userID, classID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM student_parents sp
			JOIN class_students cs ON cs.student_id = sp.student_id
			JOIN students st ON st.id = sp.student_id
			WHERE sp.user_id = $1 AND cs.class_id = $2 AND st.is_deleted = FALSE
		)
	`, userID, classID).Scan(&exists)
	return exists, err
}

// --- guarded resource reads ---

func (s *Store) GetClass(ctx context.Context, classID string) (model.Class, error) {
	var class model.Class
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, name, capacity
		FROM classes
		WHERE id = $1 AND is_deleted = FALSE
	`, classID)
	err := row.Scan(&class.ID, &class.SchoolID, &class.Name, &class.Capacity)
	return class, mapErr(err)
}

func (s *Store) UpdateClassName(ctx context.Context, classID, name string) (model.Class, error) {
	var class model.Class
	row := s.pool.QueryRow(ctx, `
		UPDATE classes SET name = $2
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING id, school_id, name, capacity
	`, classID, name)
	err := row.Scan(&class.ID, &class.SchoolID, &class.Name, &class.Capacity)
	return class, mapErr(err)
}

func (s *Store) GetStudent(ctx context.Context, studentID string) (model.Student, error) {
	var student model.Student
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, first_name, last_name
		FROM students
		WHERE id = $1 AND is_deleted = FALSE
	`, studentID)
	err := row.Scan(&student.ID, &student.SchoolID, &student.FirstName, &student.LastName)
	return student, mapErr(err)
}
