package store

import "context"

const createUser = `
INSERT INTO users (slug, name, email, timezone)
VALUES (?, ?, ?, ?)
RETURNING id, slug, name, email, timezone
`

type CreateUserParams struct {
	Slug     string
	Name     string
	Email    string
	Timezone string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Slug, arg.Name, arg.Email, arg.Timezone)
	var u User
	err := row.Scan(&u.ID, &u.Slug, &u.Name, &u.Email, &u.Timezone)
	return u, err
}

const getUser = `
SELECT id, slug, name, email, timezone FROM users WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var u User
	err := row.Scan(&u.ID, &u.Slug, &u.Name, &u.Email, &u.Timezone)
	return u, err
}

const getUserBySlug = `
SELECT id, slug, name, email, timezone FROM users WHERE slug = ?
`

func (q *Queries) GetUserBySlug(ctx context.Context, slug string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserBySlug, slug)
	var u User
	err := row.Scan(&u.ID, &u.Slug, &u.Name, &u.Email, &u.Timezone)
	return u, err
}
