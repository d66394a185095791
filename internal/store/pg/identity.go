package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dyinvoice.org/internal/identity"
)

const userColumns = `u.id, u.email, u.phone, u.first_name, u.last_name, u.password_hash, c.id, u.created_at, u.updated_at`

func (s *Store) EnsureRole(ctx context.Context, name identity.RoleName, shortName string) (identity.Role, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	role, err := s.findRole(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return identity.Role{}, err
	}

	// The unique constraint on roles.name is the arbiter: a concurrent
	// bootstrap that wins the insert turns ours into a no-op, and we
	// re-fetch the surviving row.
	row := s.db.QueryRowContext(ctx, `
		insert into roles (name, short_name)
		values ($1, $2)
		on conflict (name) do nothing
		returning id, name, short_name, created_at
	`, string(name), shortName)
	role, err = scanRole(row)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return identity.Role{}, classify(err)
	}
	return s.findRole(ctx, name)
}

func (s *Store) FindRole(ctx context.Context, name identity.RoleName) (identity.Role, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.findRole(ctx, name)
}

func (s *Store) findRole(ctx context.Context, name identity.RoleName) (identity.Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, short_name, created_at
		from roles
		where name = $1
	`, string(name))
	role, err := scanRole(row)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return identity.Role{}, classify(err)
	}
	return role, err
}

func scanRole(row *sql.Row) (identity.Role, error) {
	var (
		role identity.Role
		name string
	)
	err := row.Scan(&role.ID, &name, &role.ShortName, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Role{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Role{}, err
	}
	role.Name = identity.RoleName(name)
	return role, nil
}

func (s *Store) CreateUserWithCompany(ctx context.Context, nu identity.NewUser) (identity.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return identity.User{}, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var roleID int64
	err = tx.QueryRowContext(ctx, `select id from roles where name = $1`, string(nu.Role)).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrRoleMissing
	}
	if err != nil {
		return identity.User{}, classify(err)
	}

	var user identity.User
	err = tx.QueryRowContext(ctx, `
		insert into users (email, phone, first_name, last_name, password_hash)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at
	`, nu.Email, nu.Phone, nu.FirstName, nu.LastName, nu.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return identity.User{}, duplicateOr(err)
	}

	err = tx.QueryRowContext(ctx, `
		insert into companies (user_id, name, siret, address, share_capital, legal_form)
		values ($1, $2, $3, $4, $5, $6)
		returning id
	`, user.ID, nu.Company.Name, nu.Company.SIRET, nu.Company.Address, nu.Company.ShareCapital, nu.Company.LegalForm).
		Scan(&user.CompanyID)
	if err != nil {
		return identity.User{}, classify(err)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
	`, user.ID, roleID); err != nil {
		return identity.User{}, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return identity.User{}, duplicateOr(err)
	}

	user.Email = nu.Email
	user.Phone = nu.Phone
	user.FirstName = nu.FirstName
	user.LastName = nu.LastName
	user.PasswordHash = nu.PasswordHash
	user.Roles = []identity.RoleName{nu.Role}
	return user, nil
}

func (s *Store) FindUser(ctx context.Context, target identity.Identity) (identity.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.findUser(ctx, target)
}

func (s *Store) findUser(ctx context.Context, target identity.Identity) (identity.User, error) {
	query := `
		select ` + userColumns + `
		from users u
		join companies c on c.user_id = u.id
		where lower(u.email) = lower($1)
	`
	arg := any(target.Email)
	if target.ByID() {
		query = `
		select ` + userColumns + `
		from users u
		join companies c on c.user_id = u.id
		where u.id = $1
	`
		arg = target.ID
	}

	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return identity.User{}, err
	}
	user.Roles, err = s.userRoles(ctx, user.ID)
	if err != nil {
		return identity.User{}, err
	}
	return user, nil
}

func (s *Store) FindUserByPhone(ctx context.Context, phone string) (identity.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	user, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u
		join companies c on c.user_id = u.id
		where u.phone = $1
	`, phone))
	if err != nil {
		return identity.User{}, err
	}
	user.Roles, err = s.userRoles(ctx, user.ID)
	if err != nil {
		return identity.User{}, err
	}
	return user, nil
}

func (s *Store) FindCompany(ctx context.Context, id int64) (identity.Company, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var company identity.Company
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, name, siret, address, share_capital, legal_form, created_at, updated_at
		from companies
		where id = $1
	`, id).Scan(&company.ID, &company.OwnerID, &company.Name, &company.SIRET,
		&company.Address, &company.ShareCapital, &company.LegalForm,
		&company.CreatedAt, &company.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Company{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Company{}, classify(err)
	}
	return company, nil
}

func (s *Store) UpdateUserWithCompany(ctx context.Context, target identity.Identity, upd identity.UserUpdate) (identity.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return identity.User{}, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the user row so concurrent updates serialize.
	lock := `select u.id, c.id from users u join companies c on c.user_id = u.id where lower(u.email) = lower($1) for update of u`
	arg := any(target.Email)
	if target.ByID() {
		lock = `select u.id, c.id from users u join companies c on c.user_id = u.id where u.id = $1 for update of u`
		arg = target.ID
	}
	var userID, companyID int64
	if err := tx.QueryRowContext(ctx, lock, arg).Scan(&userID, &companyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, identity.ErrNotFound
		}
		return identity.User{}, classify(err)
	}

	if err := applyUserUpdate(ctx, tx, userID, upd); err != nil {
		return identity.User{}, err
	}
	if err := applyCompanyUpdate(ctx, tx, companyID, upd.Company); err != nil {
		return identity.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return identity.User{}, duplicateOr(err)
	}
	return s.findUser(ctx, identity.Identity{ID: userID})
}

func applyUserUpdate(ctx context.Context, tx *sql.Tx, userID int64, upd identity.UserUpdate) error {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.FirstName != nil {
		sets = append(sets, fmt.Sprintf("first_name = $%d", idx))
		args = append(args, *upd.FirstName)
		idx++
	}
	if upd.LastName != nil {
		sets = append(sets, fmt.Sprintf("last_name = $%d", idx))
		args = append(args, *upd.LastName)
		idx++
	}
	if upd.Phone != nil {
		sets = append(sets, fmt.Sprintf("phone = $%d", idx))
		args = append(args, *upd.Phone)
		idx++
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, userID)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return duplicateOr(err)
	}
	return nil
}

func applyCompanyUpdate(ctx context.Context, tx *sql.Tx, companyID int64, upd identity.CompanyUpdate) error {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.SIRET != nil {
		sets = append(sets, fmt.Sprintf("siret = $%d", idx))
		args = append(args, *upd.SIRET)
		idx++
	}
	if upd.Address != nil {
		sets = append(sets, fmt.Sprintf("address = $%d", idx))
		args = append(args, *upd.Address)
		idx++
	}
	if upd.ShareCapital != nil {
		sets = append(sets, fmt.Sprintf("share_capital = $%d", idx))
		args = append(args, *upd.ShareCapital)
		idx++
	}
	if upd.LegalForm != nil {
		sets = append(sets, fmt.Sprintf("legal_form = $%d", idx))
		args = append(args, *upd.LegalForm)
		idx++
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update companies set %s where id = $%d`, strings.Join(sets, ", "), idx)
	args = append(args, companyID)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) userRoles(ctx context.Context, userID int64) ([]identity.RoleName, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var roles []identity.RoleName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, identity.RoleName(name))
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return roles, nil
}

func scanUser(row *sql.Row) (identity.User, error) {
	var user identity.User
	err := row.Scan(&user.ID, &user.Email, &user.Phone, &user.FirstName, &user.LastName,
		&user.PasswordHash, &user.CompanyID, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, classify(err)
	}
	return user, nil
}

// duplicateOr maps unique violations on users.email / users.phone to the
// duplicate-identity kind; anything else goes through classify.
func duplicateOr(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			return fmt.Errorf("%w: email", identity.ErrDuplicateIdentity)
		case strings.Contains(pgErr.ConstraintName, "phone"):
			return fmt.Errorf("%w: phone", identity.ErrDuplicateIdentity)
		default:
			return identity.ErrDuplicateIdentity
		}
	}
	return classify(err)
}
