package storage

import "context"

// schemaSQL is applied on every startup. All statements are idempotent, so a
// restart against an existing database is a no-op.
//
// The cascade rules exist at the constraint level only; no operation exposed
// by this package deletes users or groups.
const schemaSQL = `
create table if not exists users (
    id         bigserial primary key,
    username   text not null unique,
    created_at timestamptz not null default now()
);

create table if not exists groups (
    id         bigserial primary key,
    name       text not null unique,
    created_at timestamptz not null default now()
);

create table if not exists memberships (
    group_id  bigint not null references groups (id) on delete cascade,
    user_id   bigint not null references users (id) on delete cascade,
    role      text not null default 'member',
    joined_at timestamptz not null default now(),
    primary key (group_id, user_id)
);

create table if not exists messages (
    id         bigserial primary key,
    group_id   bigint not null references groups (id) on delete cascade,
    user_id    bigint not null references users (id) on delete cascade,
    content    text,
    attachment text,
    created_at timestamptz not null default now(),
    check (content is not null or attachment is not null)
);

create index if not exists idx_messages_group_time on messages (group_id, created_at);
create index if not exists idx_messages_user_time on messages (user_id, created_at);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}
