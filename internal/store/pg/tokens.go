package pg

import (
	"context"
	"database/sql"
	"errors"

	"parley.chat/internal/auth"
)

type tokenStore struct{ s *Store }

const tokenColumns = `access_token, refresh_token, token_type, expires_at`

func scanToken(row interface{ Scan(...any) error }) (*auth.Token, error) {
	var t auth.Token
	err := row.Scan(&t.AccessToken, &t.RefreshToken, &t.TokenType, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func blockedTx(ctx context.Context, tx *sql.Tx, tok auth.Token) (bool, error) {
	var blocked bool
	err := tx.QueryRowContext(ctx, `
		select exists(select 1 from token_blacklist where token in ($1, $2))
	`, tok.AccessToken, tok.RefreshToken).Scan(&blocked)
	return blocked, err
}

func blacklistTx(ctx context.Context, tx *sql.Tx, strs ...string) error {
	for _, s := range strs {
		if s == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			insert into token_blacklist(token) values ($1) on conflict do nothing
		`, s); err != nil {
			return err
		}
	}
	return nil
}

// Cache claims the single active slot for username. The row lock makes the
// check-then-set atomic against concurrent logins for the same user.
func (st tokenStore) Cache(ctx context.Context, username string, tok auth.Token) (*auth.Token, error) {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanToken(tx.QueryRowContext(ctx, `
		select `+tokenColumns+` from token_cache where username=$1 for update
	`, username))
	if err != nil {
		return nil, err
	}
	if cur != nil {
		blocked, err := blockedTx(ctx, tx, *cur)
		if err != nil {
			return nil, err
		}
		if !blocked {
			return nil, tx.Commit()
		}
	}

	if _, err := tx.ExecContext(ctx, `
		insert into token_cache(username, `+tokenColumns+`)
		values ($1,$2,$3,$4,$5)
		on conflict (username) do update
		set access_token=excluded.access_token,
		    refresh_token=excluded.refresh_token,
		    token_type=excluded.token_type,
		    expires_at=excluded.expires_at
	`, username, tok.AccessToken, tok.RefreshToken, tok.TokenType, tok.ExpiresAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	cp := tok
	return &cp, nil
}

func (st tokenStore) Cached(ctx context.Context, username string) (*auth.Token, error) {
	tok, err := scanToken(st.s.db.QueryRowContext(ctx, `
		select `+tokenColumns+` from token_cache where username=$1
	`, username))
	if err != nil || tok == nil {
		return nil, err
	}
	var blocked bool
	if err := st.s.db.QueryRowContext(ctx, `
		select exists(select 1 from token_blacklist where token in ($1, $2))
	`, tok.AccessToken, tok.RefreshToken).Scan(&blocked); err != nil {
		return nil, err
	}
	if blocked {
		return nil, nil
	}
	return tok, nil
}

func (st tokenStore) Invalidate(ctx context.Context, tok auth.Token) error {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := blacklistTx(ctx, tx, tok.AccessToken, tok.RefreshToken); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		delete from token_cache where access_token=$1 and refresh_token=$2
	`, tok.AccessToken, tok.RefreshToken); err != nil {
		return err
	}
	return tx.Commit()
}

func (st tokenStore) IsBlocked(ctx context.Context, token string) (bool, error) {
	var blocked bool
	err := st.s.db.QueryRowContext(ctx, `
		select exists(select 1 from token_blacklist where token=$1)
	`, token).Scan(&blocked)
	return blocked, err
}

func (st tokenStore) Logout(ctx context.Context, username string, revoke bool) error {
	tx, err := st.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanToken(tx.QueryRowContext(ctx, `
		select `+tokenColumns+` from token_cache where username=$1 for update
	`, username))
	if err != nil {
		return err
	}
	if cur == nil {
		return tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `delete from token_cache where username=$1`, username); err != nil {
		return err
	}
	if revoke {
		if err := blacklistTx(ctx, tx, cur.AccessToken, cur.RefreshToken); err != nil {
			return err
		}
	}
	return tx.Commit()
}
