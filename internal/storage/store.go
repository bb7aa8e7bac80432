package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"group-chat-service/internal/storage/zapadapter"
)

var (
	ErrUserExists    = errors.New("user already exists")
	ErrUserNotExist  = errors.New("user does not exist")
	ErrGroupExists   = errors.New("group already exists")
	ErrGroupNotExist = errors.New("group does not exist")
	ErrAlreadyMember = errors.New("user is already a group member")
	ErrNotMember     = errors.New("user is not a group member")
	ErrEmptyMessage  = errors.New("message needs content or attachment")
	ErrBadLimit      = errors.New("limit must be between 1 and 500")
)

// History query limits accepted by MessagesByGroup.
const (
	MinLimit = 1
	MaxLimit = 500
)

// queryRower is satisfied by both pgxpool.Pool and pgx.Tx, so name
// resolution helpers run inside or outside a transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New connects a pgx pool configured from cfg (with opts applied on top),
// routes driver logging into the provided zap logger and applies the schema
// before returning a ready Store.
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	s := &Store{
		logger: logger,
		db:     pool,
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateUser creates user and returns the persisted record.
func (s *Store) CreateUser(ctx context.Context, username string) (User, error) {
	s.logger.Debugf("Creating user (%s)", username)

	u := User{Username: username}
	sql := "insert into users (username) values ($1) returning id, created_at"
	err := s.db.QueryRow(ctx, sql, username).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return User{}, ErrUserExists
		}
		return User{}, err
	}

	s.logger.Debugf("Created user (%s) with id %d", username, u.ID)

	return u, nil
}

// ListUsers returns all users ordered by id ascending
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	sql := "select id, username, created_at from users order by id asc"
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return users, nil
}

// CreateGroup creates group and returns the persisted record.
func (s *Store) CreateGroup(ctx context.Context, name string) (Group, error) {
	s.logger.Debugf("Creating group (%s)", name)

	g := Group{Name: name}
	sql := "insert into groups (name) values ($1) returning id, created_at"
	err := s.db.QueryRow(ctx, sql, name).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return Group{}, ErrGroupExists
		}
		return Group{}, err
	}

	s.logger.Debugf("Created group (%s) with id %d", name, g.ID)

	return g, nil
}

// ListGroups returns all groups ordered by id ascending
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	sql := "select id, name, created_at from groups order by id asc"
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return groups, nil
}

// UserIDByName resolves username to id
func (s *Store) UserIDByName(ctx context.Context, username string) (int64, error) {
	return s.userIDByName(ctx, s.db, username)
}

// GroupIDByName resolves group name to id
func (s *Store) GroupIDByName(ctx context.Context, name string) (int64, error) {
	return s.groupIDByName(ctx, s.db, name)
}

func (s *Store) userIDByName(ctx context.Context, q queryRower, username string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, "select id from users where username = $1", username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotExist
		}
		return 0, err
	}
	return id, nil
}

func (s *Store) groupIDByName(ctx context.Context, q queryRower, name string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, "select id from groups where name = $1", name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrGroupNotExist
		}
		return 0, err
	}
	return id, nil
}

// AddMember resolves both names and inserts a membership row for the pair.
// Duplicate pairs are rejected, not merged. A blank role defaults to
// "member". Resolution and insert share one transaction, so a concurrent
// user/group deletion surfaces as the same not-exist error as a wrong name.
func (s *Store) AddMember(ctx context.Context, groupName, username, role string) (Membership, error) {
	s.logger.Debugf("Adding user (%s) to group (%s)", username, groupName)

	if role == "" {
		role = "member"
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Membership{}, err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions or any source comment on Rollback
	defer tx.Rollback(context.Background())

	groupID, err := s.groupIDByName(ctx, tx, groupName)
	if err != nil {
		return Membership{}, err
	}
	userID, err := s.userIDByName(ctx, tx, username)
	if err != nil {
		return Membership{}, err
	}

	m := Membership{Group: groupName, Username: username, Role: role}
	sql := "insert into memberships (group_id, user_id, role) values ($1, $2, $3) returning joined_at"
	err = tx.QueryRow(ctx, sql, groupID, userID, role).Scan(&m.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return Membership{}, ErrAlreadyMember
			case pgerrcode.ForeignKeyViolation:
				switch pgErr.ConstraintName {
				case "memberships_group_id_fkey":
					return Membership{}, ErrGroupNotExist
				case "memberships_user_id_fkey":
					return Membership{}, ErrUserNotExist
				}
			}
		}
		return Membership{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Membership{}, err
	}

	s.logger.Debugf("Added user (%s) to group (%s) as %s", username, groupName, role)

	return m, nil
}

// IsMember reports whether the (group, user) pair is present in the
// membership index. Pure lookup, no side effects.
func (s *Store) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	return s.isMember(ctx, s.db, groupID, userID)
}

func (s *Store) isMember(ctx context.Context, q queryRower, groupID, userID int64) (bool, error) {
	var one int8
	sql := "select 1 from memberships where group_id = $1 and user_id = $2"
	err := q.QueryRow(ctx, sql, groupID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateMessage appends one message to a group's log on behalf of username.
// The empty-payload check runs before any database access; name resolution,
// the membership gate and the insert share one transaction so a failed call
// leaves no partial rows. Returns the materialized record including the
// server-assigned id and timestamp.
func (s *Store) CreateMessage(ctx context.Context, groupName, username, content, attachment string) (Message, error) {
	s.logger.Debugf("Creating message from user (%s) in group (%s)", username, groupName)

	if strings.TrimSpace(content) == "" && strings.TrimSpace(attachment) == "" {
		return Message{}, ErrEmptyMessage
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback(context.Background())

	groupID, err := s.groupIDByName(ctx, tx, groupName)
	if err != nil {
		return Message{}, err
	}
	userID, err := s.userIDByName(ctx, tx, username)
	if err != nil {
		return Message{}, err
	}

	member, err := s.isMember(ctx, tx, groupID, userID)
	if err != nil {
		return Message{}, err
	}
	if !member {
		return Message{}, ErrNotMember
	}

	m := Message{
		GroupID:    groupID,
		Username:   username,
		Content:    nullable(content),
		Attachment: nullable(attachment),
	}
	sql := `insert into messages (group_id, user_id, content, attachment)
			values ($1, $2, $3, $4) returning id, created_at`
	err = tx.QueryRow(ctx, sql, groupID, userID, m.Content, m.Attachment).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	s.logger.Debugf("Created message with id %d in group (%s)", m.ID, groupName)

	return m, nil
}

// MessagesByGroup returns at most limit messages of one group, newest first.
// After is an inclusive and before an exclusive bound on creation time; both
// are optional and a contradictory pair simply yields an empty list. Equal
// timestamps tie-break on id so the order is stable.
func (s *Store) MessagesByGroup(ctx context.Context, groupName string, limit int, filter HistoryFilter) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for group (%s), limit %d", groupName, limit)

	if limit < MinLimit || limit > MaxLimit {
		return nil, ErrBadLimit
	}

	groupID, err := s.groupIDByName(ctx, s.db, groupName)
	if err != nil {
		return nil, err
	}

	tail, args := filter.build()
	sql := `select m.id, m.group_id, u.username, m.content, m.attachment, m.created_at
			  from messages m
			  join users u
				on u.id = m.user_id
			 where m.group_id = $1` + tail + `
			 order by m.created_at desc, m.id desc
			 limit $` + strconv.Itoa(len(args)+2)

	args = append(append([]interface{}{groupID}, args...), limit)

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m          Message
			content    pgtype.Text
			attachment pgtype.Text
		)
		err = rows.Scan(&m.ID, &m.GroupID, &m.Username, &content, &attachment, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		m.Content = textPtr(content)
		m.Attachment = textPtr(attachment)
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// nullable maps a blank payload field to SQL NULL
func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func textPtr(t pgtype.Text) *string {
	if t.Status != pgtype.Present {
		return nil
	}
	v := t.String
	return &v
}
