package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"peermesh/pkg/domain"
	"peermesh/pkg/platform/sentinel"
)

// PostgresStore persists local requests in PostgreSQL. The item trees are
// stored as JSON documents; the fields the engine filters on get their own
// columns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the local_requests table. Called from wiring, not from
// the store itself.
const Schema = `
CREATE TABLE IF NOT EXISTS local_requests (
	id                  UUID PRIMARY KEY,
	direction           TEXT NOT NULL,
	peer                TEXT NOT NULL,
	status              TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	expires_at          TIMESTAMPTZ,
	content             JSONB NOT NULL,
	source_type         TEXT,
	source_reference    TEXT,
	source_incoming     BOOLEAN,
	response            JSONB,
	response_created_at TIMESTAMPTZ,
	response_reference  TEXT
);
CREATE INDEX IF NOT EXISTS idx_local_requests_peer ON local_requests (peer);
CREATE INDEX IF NOT EXISTS idx_local_requests_status ON local_requests (status);
`

const requestColumns = `id, direction, peer, status, created_at, expires_at, content,
	source_type, source_reference, source_incoming, response, response_created_at, response_reference`

func (s *PostgresStore) Save(ctx context.Context, r *LocalRequest) error {
	query := `
		INSERT INTO local_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			content = EXCLUDED.content,
			source_type = EXCLUDED.source_type,
			source_reference = EXCLUDED.source_reference,
			source_incoming = EXCLUDED.source_incoming,
			response = EXCLUDED.response,
			response_created_at = EXCLUDED.response_created_at,
			response_reference = EXCLUDED.response_reference
	`
	content, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("marshal request content: %w", err)
	}
	var (
		expiresAt                   sql.NullTime
		sourceType, sourceReference sql.NullString
		sourceIncoming              sql.NullBool
		response                    []byte
		responseCreatedAt           sql.NullTime
		responseReference           sql.NullString
	)
	if r.Content.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *r.Content.ExpiresAt, Valid: true}
	}
	if r.Source != nil {
		sourceType = sql.NullString{String: string(r.Source.Type), Valid: true}
		sourceReference = sql.NullString{String: r.Source.Reference, Valid: true}
		sourceIncoming = sql.NullBool{Bool: r.Source.Incoming, Valid: true}
	}
	if r.Response != nil {
		response, err = json.Marshal(r.Response.Response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		responseCreatedAt = sql.NullTime{Time: r.Response.CreatedAt, Valid: true}
		responseReference = sql.NullString{String: r.Response.Reference, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, query,
		r.ID.String(), string(r.Direction), r.Peer.String(), string(r.Status), r.CreatedAt,
		expiresAt, content, sourceType, sourceReference, sourceIncoming,
		response, responseCreatedAt, responseReference,
	)
	if err != nil {
		return fmt.Errorf("save local request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.RequestID) (*LocalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM local_requests WHERE id = $1`, id.String())
	request, err := scanRequest(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get local request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.RequestID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM local_requests WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete local request: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*LocalRequest, error) {
	var clauses []string
	var args []any
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			statuses = append(statuses, string(status))
		}
		args = append(args, pq.Array(statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.Peer.IsEmpty() {
		args = append(args, filter.Peer.String())
		clauses = append(clauses, fmt.Sprintf("peer = $%d", len(args)))
	}
	if filter.Direction != "" {
		args = append(args, string(filter.Direction))
		clauses = append(clauses, fmt.Sprintf("direction = $%d", len(args)))
	}
	if filter.SourceReference != "" {
		args = append(args, filter.SourceReference)
		clauses = append(clauses, fmt.Sprintf("source_reference = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM local_requests`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list local requests: %w", err)
	}
	defer rows.Close()

	var result []*LocalRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan local request: %w", err)
		}
		result = append(result, request)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*LocalRequest, error) {
	var (
		r                           LocalRequest
		idRaw, direction, peer      string
		status                      string
		createdAt                   time.Time
		expiresAt                   sql.NullTime
		content                     []byte
		sourceType, sourceReference sql.NullString
		sourceIncoming              sql.NullBool
		response                    []byte
		responseCreatedAt           sql.NullTime
		responseReference           sql.NullString
	)
	err := row.Scan(&idRaw, &direction, &peer, &status, &createdAt, &expiresAt, &content,
		&sourceType, &sourceReference, &sourceIncoming,
		&response, &responseCreatedAt, &responseReference)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseRequestID(idRaw)
	if err != nil {
		return nil, err
	}
	r.ID = id
	r.Direction = Direction(direction)
	r.Peer = domain.Address(peer)
	r.Status = Status(status)
	r.CreatedAt = createdAt
	if err := json.Unmarshal(content, &r.Content); err != nil {
		return nil, fmt.Errorf("unmarshal request content: %w", err)
	}
	if sourceType.Valid {
		r.Source = &Source{
			Type:      SourceType(sourceType.String),
			Reference: sourceReference.String,
			Incoming:  sourceIncoming.Bool,
		}
	}
	if len(response) > 0 {
		var decoded Response
		if err := json.Unmarshal(response, &decoded); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		r.Response = &ResponseSource{
			Response:  decoded,
			CreatedAt: responseCreatedAt.Time,
			Reference: responseReference.String,
		}
	}
	return &r, nil
}
