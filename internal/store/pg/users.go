package pg

import (
	"context"
	"fmt"

	"parley.chat/internal/auth"
	"parley.chat/internal/store"
)

const userColumns = `id, username, email, full_name, organization_id, role, disabled, hashed_password`

type userStore struct{ s *Store }

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName,
		&u.OrganizationID, &u.Role, &u.Disabled, &u.HashedPassword)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &u, nil
}

func (st userStore) Create(ctx context.Context, u *auth.User) error {
	res, err := st.s.db.ExecContext(ctx, `
		insert into users(`+userColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict do nothing
	`, u.ID, u.Username, u.Email, u.FullName, u.OrganizationID, string(u.Role), u.Disabled, u.HashedPassword)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (st userStore) Retrieve(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(st.s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (st userStore) RetrieveByUsername(ctx context.Context, username string) (*auth.User, error) {
	return scanUser(st.s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username))
}

func (st userStore) List(ctx context.Context, filter auth.UserFilter, opts store.ListOptions) (store.Page[auth.User], error) {
	var page store.Page[auth.User]
	var conds []string
	var args []any

	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		conds = append(conds, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.PlatformOnly {
		conds = append(conds, "organization_id = ''")
	}
	if len(filter.Roles) > 0 {
		ph := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			args = append(args, string(r))
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "role in ("+join(ph)+")")
	}
	if opts.Disabled != nil {
		args = append(args, *opts.Disabled)
		conds = append(conds, fmt.Sprintf("disabled = $%d", len(args)))
	}
	conds = append(conds, cursorClause("id", opts, &args)...)

	query := `select ` + userColumns + ` from users` + whereClause(conds) + orderAndLimit("id", opts, &args)
	rows, err := st.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	var items []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return page, err
		}
		items = append(items, *u)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	return store.NewPage(items, opts.Limit, func(u auth.User) string { return u.ID }), nil
}

func (st userStore) Update(ctx context.Context, u *auth.User) error {
	res, err := st.s.db.ExecContext(ctx, `
		update users
		set username=$2, email=$3, full_name=$4, organization_id=$5, role=$6, disabled=$7, hashed_password=$8
		where id=$1
	`, u.ID, u.Username, u.Email, u.FullName, u.OrganizationID, string(u.Role), u.Disabled, u.HashedPassword)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (st userStore) Delete(ctx context.Context, id string, soft bool) error {
	if soft {
		res, err := st.s.db.ExecContext(ctx, `update users set disabled=true where id=$1`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	}
	res, err := st.s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
