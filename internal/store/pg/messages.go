package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"parley.chat/internal/chat"
	"parley.chat/internal/store"
)

const msgColumns = `id, conversation_id, sender_id, type, content, edited, deleted, reply_to, metadata, reactions, created_at, updated_at`

type msgStore struct{ s *Store }

func scanMsg(row interface{ Scan(...any) error }) (*chat.Message, error) {
	var m chat.Message
	var metadata, reactions []byte
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Type, &m.Content,
		&m.Edited, &m.Deleted, &m.ReplyTo, &metadata, &reactions, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}
	return &m, nil
}

func msgJSON(m *chat.Message) (metadata, reactions []byte, err error) {
	metadata = []byte("null")
	if m.Metadata != nil {
		metadata, err = json.Marshal(m.Metadata)
		if err != nil {
			return nil, nil, err
		}
	}
	rs := m.Reactions
	if rs == nil {
		rs = []chat.Reaction{}
	}
	reactions, err = json.Marshal(rs)
	if err != nil {
		return nil, nil, err
	}
	return metadata, reactions, nil
}

func (st msgStore) Create(ctx context.Context, m *chat.Message) error {
	metadata, reactions, err := msgJSON(m)
	if err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `
		insert into messages(`+msgColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict do nothing
	`, m.ID, m.ConversationID, m.SenderID, string(m.Type), m.Content,
		m.Edited, m.Deleted, m.ReplyTo, metadata, reactions, m.CreatedAt, m.UpdatedAt)
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

func (st msgStore) Retrieve(ctx context.Context, id string) (*chat.Message, error) {
	return scanMsg(st.s.db.QueryRowContext(ctx,
		`select `+msgColumns+` from messages where id=$1`, id))
}

func (st msgStore) List(ctx context.Context, f chat.MessageFilter, opts store.ListOptions) (store.Page[chat.Message], error) {
	var page store.Page[chat.Message]
	var conds []string
	var args []any

	if f.ConversationID != "" {
		args = append(args, f.ConversationID)
		conds = append(conds, fmt.Sprintf("conversation_id = $%d", len(args)))
	}
	if opts.Disabled != nil {
		args = append(args, *opts.Disabled)
		conds = append(conds, fmt.Sprintf("deleted = $%d", len(args)))
	}
	conds = append(conds, cursorClause("id", opts, &args)...)

	query := `select ` + msgColumns + ` from messages` + whereClause(conds) + orderAndLimit("id", opts, &args)
	rows, err := st.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	var items []chat.Message
	for rows.Next() {
		m, err := scanMsg(rows)
		if err != nil {
			return page, err
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	return store.NewPage(items, opts.Limit, func(m chat.Message) string { return m.ID }), nil
}

func (st msgStore) Update(ctx context.Context, m *chat.Message) error {
	metadata, reactions, err := msgJSON(m)
	if err != nil {
		return err
	}
	res, err := st.s.db.ExecContext(ctx, `
		update messages
		set content=$2, edited=$3, deleted=$4, metadata=$5, reactions=$6, updated_at=$7
		where id=$1
	`, m.ID, m.Content, m.Edited, m.Deleted, metadata, reactions, m.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (st msgStore) Delete(ctx context.Context, id string, soft bool) error {
	if soft {
		res, err := st.s.db.ExecContext(ctx, `update messages set deleted=true where id=$1`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	}
	res, err := st.s.db.ExecContext(ctx, `delete from messages where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
