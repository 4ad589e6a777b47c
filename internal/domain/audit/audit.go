package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry describes one state-changing request.
type Entry struct {
	TenantID   string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	IP         string
	Before     any
	After      any
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, entry Entry) error {
	beforeJSON, err := marshalOptional(entry.Before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalOptional(entry.After)
	if err != nil {
		return err
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (tenant_id, actor_user_id, action, entity_type, entity_id, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, entry.TenantID, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, beforeJSON, afterJSON, entry.RequestID, entry.IP)
	return err
}

func marshalOptional(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

// Discard drops every entry. It stands in when no database is attached.
type Discard struct{}

func (Discard) Record(context.Context, Entry) error { return nil }
