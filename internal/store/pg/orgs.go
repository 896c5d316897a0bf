package pg

import (
	"context"
	"fmt"

	"parley.chat/internal/auth"
	"parley.chat/internal/store"
)

const orgColumns = `id, name, description, owner_id, disabled`

type orgStore struct{ s *Store }

func scanOrg(row interface{ Scan(...any) error }) (*auth.Organization, error) {
	var o auth.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Description, &o.OwnerID, &o.Disabled)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &o, nil
}

func (st orgStore) Create(ctx context.Context, org *auth.Organization) error {
	res, err := st.s.db.ExecContext(ctx, `
		insert into organizations(`+orgColumns+`)
		values ($1,$2,$3,$4,$5)
		on conflict do nothing
	`, org.ID, org.Name, org.Description, org.OwnerID, org.Disabled)
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

func (st orgStore) Retrieve(ctx context.Context, id string) (*auth.Organization, error) {
	return scanOrg(st.s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id=$1`, id))
}

func (st orgStore) List(ctx context.Context, filter auth.OrganizationFilter, opts store.ListOptions) (store.Page[auth.Organization], error) {
	var page store.Page[auth.Organization]
	var conds []string
	var args []any

	if len(filter.IDs) > 0 {
		ph := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			args = append(args, id)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "id in ("+join(ph)+")")
	}
	if opts.Disabled != nil {
		args = append(args, *opts.Disabled)
		conds = append(conds, fmt.Sprintf("disabled = $%d", len(args)))
	}
	conds = append(conds, cursorClause("id", opts, &args)...)

	query := `select ` + orgColumns + ` from organizations` + whereClause(conds) + orderAndLimit("id", opts, &args)
	rows, err := st.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	var items []auth.Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return page, err
		}
		items = append(items, *o)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	return store.NewPage(items, opts.Limit, func(o auth.Organization) string { return o.ID }), nil
}

func (st orgStore) Update(ctx context.Context, org *auth.Organization) error {
	res, err := st.s.db.ExecContext(ctx, `
		update organizations
		set name=$2, description=$3, owner_id=$4, disabled=$5
		where id=$1
	`, org.ID, org.Name, org.Description, org.OwnerID, org.Disabled)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (st orgStore) Delete(ctx context.Context, id string, soft bool) error {
	if soft {
		res, err := st.s.db.ExecContext(ctx, `update organizations set disabled=true where id=$1`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	}
	res, err := st.s.db.ExecContext(ctx, `delete from organizations where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
