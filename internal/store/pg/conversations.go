package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"parley.chat/internal/chat"
	"parley.chat/internal/store"
)

const convColumns = `id, organization_id, type, name, participants, disabled, created_at, updated_at`

type convStore struct{ s *Store }

func scanConv(row interface{ Scan(...any) error }) (*chat.Conversation, error) {
	var c chat.Conversation
	var participants []byte
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Type, &c.Name,
		&participants, &c.Disabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if err := json.Unmarshal(participants, &c.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return &c, nil
}

func (st convStore) Create(ctx context.Context, c *chat.Conversation) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `
		insert into conversations(`+convColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict do nothing
	`, c.ID, c.OrganizationID, string(c.Type), c.Name, participants, c.Disabled, c.CreatedAt, c.UpdatedAt)
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

func (st convStore) Retrieve(ctx context.Context, id string) (*chat.Conversation, error) {
	return scanConv(st.s.db.QueryRowContext(ctx,
		`select `+convColumns+` from conversations where id=$1`, id))
}

func (st convStore) List(ctx context.Context, f chat.Filter, opts store.ListOptions) (store.Page[chat.Conversation], error) {
	var page store.Page[chat.Conversation]
	var conds []string
	var args []any

	if f.OrganizationID != "" {
		args = append(args, f.OrganizationID)
		conds = append(conds, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if f.Participant != "" {
		args = append(args, fmt.Sprintf(`[{"user_id":%q}]`, f.Participant))
		conds = append(conds, fmt.Sprintf("participants @> $%d::jsonb", len(args)))
	}
	if opts.Disabled != nil {
		args = append(args, *opts.Disabled)
		conds = append(conds, fmt.Sprintf("disabled = $%d", len(args)))
	}
	conds = append(conds, cursorClause("id", opts, &args)...)

	query := `select ` + convColumns + ` from conversations` + whereClause(conds) + orderAndLimit("id", opts, &args)
	rows, err := st.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	var items []chat.Conversation
	for rows.Next() {
		c, err := scanConv(rows)
		if err != nil {
			return page, err
		}
		items = append(items, *c)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	return store.NewPage(items, opts.Limit, func(c chat.Conversation) string { return c.ID }), nil
}

func (st convStore) Update(ctx context.Context, c *chat.Conversation) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `
		update conversations
		set type=$2, name=$3, participants=$4, disabled=$5, updated_at=$6
		where id=$1
	`, c.ID, string(c.Type), c.Name, participants, c.Disabled, c.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (st convStore) Delete(ctx context.Context, id string, soft bool) error {
	if soft {
		res, err := st.s.db.ExecContext(ctx, `update conversations set disabled=true where id=$1`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	}
	res, err := st.s.db.ExecContext(ctx, `delete from conversations where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
