// README: Profile store backed by PostgreSQL.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bagdrop/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const profileColumns = `
	id, role, account_status, verification_status,
	first_name, middle_initial, last_name, email, contact_number,
	emergency_contact_name, emergency_contact_number, corporation_id,
	picture_url, last_sign_in_at, created_at, updated_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Profile, error) {
	row := s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, string(id))
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) List(ctx context.Context, f Filter) ([]Profile, error) {
	var where []string
	var args []any
	if f.Role != nil {
		args = append(args, string(*f.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("account_status = $%d", len(args)))
	}
	if f.Verification != nil {
		args = append(args, string(*f.Verification))
		where = append(where, fmt.Sprintf("verification_status = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	q := `SELECT ` + profileColumns + ` FROM profiles`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, p *Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (
			id, role, account_status, verification_status,
			first_name, middle_initial, last_name, email, contact_number,
			emergency_contact_name, emergency_contact_number, corporation_id,
			picture_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		string(p.ID), string(p.Role), string(p.Status), string(p.Verification),
		p.FirstName, p.MiddleInitial, p.LastName, p.Email, p.ContactNumber,
		p.EmergencyContactName, p.EmergencyContactNumber, idPtr(p.CorporationID),
		p.PictureURL, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *Store) UpdateSelf(ctx context.Context, id types.ID, u SelfUpdate) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET first_name = COALESCE($2, first_name),
			middle_initial = COALESCE($3, middle_initial),
			last_name = COALESCE($4, last_name),
			contact_number = COALESCE($5, contact_number),
			emergency_contact_name = COALESCE($6, emergency_contact_name),
			emergency_contact_number = COALESCE($7, emergency_contact_number),
			updated_at = NOW()
		WHERE id = $1`,
		string(id), u.FirstName, u.MiddleInitial, u.LastName,
		u.ContactNumber, u.EmergencyContactName, u.EmergencyContactNumber,
	)
	return affected(tag.RowsAffected(), err)
}

func (s *Store) UpdateAdmin(ctx context.Context, id types.ID, u AdminUpdate) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET role = COALESCE($2, role),
			account_status = COALESCE($3, account_status),
			verification_status = COALESCE($4, verification_status),
			corporation_id = COALESCE($5, corporation_id),
			updated_at = NOW()
		WHERE id = $1`,
		string(id), rolePtr(u.Role), statusPtr(u.Status), verificationPtr(u.Verification), idPtr(u.CorporationID),
	)
	return affected(tag.RowsAffected(), err)
}

func (s *Store) SetStatus(ctx context.Context, id types.ID, status AccountStatus, signedInAt *time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE profiles
		SET account_status = $2,
			last_sign_in_at = COALESCE($3, last_sign_in_at),
			updated_at = NOW()
		WHERE id = $1`,
		string(id), string(status), signedInAt,
	)
	return affected(tag.RowsAffected(), err)
}

func (s *Store) SetPicture(ctx context.Context, id types.ID, url string) error {
	tag, err := s.db.Exec(ctx, `UPDATE profiles SET picture_url = $2, updated_at = NOW() WHERE id = $1`,
		string(id), url)
	return affected(tag.RowsAffected(), err)
}

func affected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var id, role, status, verification string
	var corp *string
	err := row.Scan(
		&id, &role, &status, &verification,
		&p.FirstName, &p.MiddleInitial, &p.LastName, &p.Email, &p.ContactNumber,
		&p.EmergencyContactName, &p.EmergencyContactNumber, &corp,
		&p.PictureURL, &p.LastSignInAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ID = types.ID(id)
	p.Role = types.Role(role)
	p.Status = AccountStatus(status)
	p.Verification = Verification(verification)
	if !p.Role.Valid() || !p.Status.Valid() || !p.Verification.Valid() {
		return nil, fmt.Errorf("%w: %s has role=%q status=%q verification=%q",
			ErrMalformedRow, id, role, status, verification)
	}
	if corp != nil {
		c := types.ID(*corp)
		p.CorporationID = &c
	}
	return &p, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func rolePtr(v *types.Role) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func statusPtr(v *AccountStatus) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func verificationPtr(v *Verification) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
