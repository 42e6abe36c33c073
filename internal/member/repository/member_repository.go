package repository

import (
	"context"
	"errors"
	"fmt"

	"chat_room_client/internal/member/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// MemberRepository definition get Member info
type MemberRepository interface {
	CreateUser(ctx context.Context, member *domain.Member) error
	UpdateMemberStatus(ctx context.Context, member *domain.Member) error
	UpdateProfile(ctx context.Context, memberID string, displayName, photoURL *string) (*domain.Member, error)
	FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error)
}

const memberSchema = `
CREATE TABLE IF NOT EXISTS member (
	id           BIGSERIAL PRIMARY KEY,
	member_id    TEXT NOT NULL UNIQUE,
	email        TEXT NOT NULL UNIQUE,
	password     TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	photo_url    TEXT NOT NULL DEFAULT '',
	status       INT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const memberColumns = "id, member_id, email, password, display_name, photo_url, status, created_at"

// pg unique_violation
const uniqueViolation = "23505"

type memberRepository struct {
	db *pgxpool.Pool
}

// NewMemberRepository create a MemberRepository
func NewMemberRepository(db *pgxpool.Pool) MemberRepository {
	return &memberRepository{db: db}
}

// Migrate create the member table if missing
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, memberSchema); err != nil {
		return fmt.Errorf("migrate member table: %w", err)
	}
	return nil
}

func (r *memberRepository) CreateUser(ctx context.Context, member *domain.Member) error {
	row := r.db.QueryRow(ctx,
		"INSERT INTO member(member_id, email, password, display_name, photo_url) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at",
		member.MemberID, member.Email, member.Password, member.DisplayName, member.PhotoURL)
	if err := row.Scan(&member.ID, &member.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrEmailExists
		}
		return err
	}
	return nil
}

func (r *memberRepository) UpdateMemberStatus(ctx context.Context, member *domain.Member) error {
	_, err := r.db.Exec(ctx, "UPDATE member SET status = $1 WHERE member_id = $2", int(member.Status), member.MemberID)
	return err
}

// UpdateProfile nil 欄位保留原值
func (r *memberRepository) UpdateProfile(ctx context.Context, memberID string, displayName, photoURL *string) (*domain.Member, error) {
	row := r.db.QueryRow(ctx,
		"UPDATE member SET display_name = COALESCE($1, display_name), photo_url = COALESCE($2, photo_url) WHERE member_id = $3 RETURNING "+memberColumns,
		displayName, photoURL, memberID)
	return scanMember(row)
}

func (r *memberRepository) FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error) {
	queryStr := "SELECT " + memberColumns + " FROM member WHERE 1=1"
	params := []interface{}{}
	paramCount := 1

	if memberQuery.Email != nil {
		queryStr += fmt.Sprintf(" AND email = $%d", paramCount)
		params = append(params, *memberQuery.Email)
		paramCount++
	}
	if memberQuery.MemberID != nil {
		queryStr += fmt.Sprintf(" AND member_id = $%d", paramCount)
		params = append(params, *memberQuery.MemberID)
		paramCount++
	}
	if memberQuery.ID != nil {
		queryStr += fmt.Sprintf(" AND id = $%d", paramCount)
		params = append(params, *memberQuery.ID)
	}

	return scanMember(r.db.QueryRow(ctx, queryStr, params...))
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	var member domain.Member
	err := row.Scan(&member.ID, &member.MemberID, &member.Email, &member.Password,
		&member.DisplayName, &member.PhotoURL, &member.Status, &member.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}
