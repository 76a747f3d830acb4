package attributes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"peermesh/pkg/domain"
	"peermesh/pkg/platform/sentinel"
)

// PostgresStore persists attributes in PostgreSQL. The store is pure I/O;
// all lifecycle rules belong in the service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the attributes table. Called from wiring, not from the
// store itself.
const Schema = `
CREATE TABLE IF NOT EXISTS attributes (
	id                     UUID PRIMARY KEY,
	role                   TEXT NOT NULL,
	kind                   TEXT NOT NULL,
	owner                  TEXT NOT NULL DEFAULT '',
	value_type             TEXT NOT NULL,
	value                  TEXT NOT NULL,
	key                    TEXT NOT NULL DEFAULT '',
	created_at             TIMESTAMPTZ NOT NULL,
	succeeds               UUID,
	succeeded_by           UUID,
	parent_id              UUID,
	peer                   TEXT,
	request_reference      UUID,
	notification_reference UUID,
	shared_at              TIMESTAMPTZ,
	source_attribute       UUID,
	deletion_status        TEXT,
	deletion_date          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_attributes_peer ON attributes (peer);
CREATE INDEX IF NOT EXISTS idx_attributes_parent ON attributes (parent_id);
`

// columnsByField maps query field paths to table columns.
var columnsByField = map[string]string{
	FieldID:              "id",
	FieldRole:            "role",
	FieldKind:            "kind",
	FieldOwner:           "owner",
	FieldValueType:       "value_type",
	FieldValue:           "value",
	FieldKey:             "key",
	FieldParentID:        "parent_id",
	FieldSucceeds:        "succeeds",
	FieldSucceededBy:     "succeeded_by",
	FieldPeer:            "peer",
	FieldSourceAttribute: "source_attribute",
	FieldDeletionStatus:  "deletion_status",
}

// Owner and key are stored as empty strings, so "absent" means empty there
// and NULL everywhere else.
var emptyMeansAbsent = map[string]bool{"owner": true, "key": true}

const attributeColumns = `id, role, kind, owner, value_type, value, key, created_at,
	succeeds, succeeded_by, parent_id, peer, request_reference, notification_reference,
	shared_at, source_attribute, deletion_status, deletion_date`

func (s *PostgresStore) Save(ctx context.Context, a *Attribute) error {
	query := `
		INSERT INTO attributes (` + attributeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			kind = EXCLUDED.kind,
			owner = EXCLUDED.owner,
			value_type = EXCLUDED.value_type,
			value = EXCLUDED.value,
			key = EXCLUDED.key,
			succeeds = EXCLUDED.succeeds,
			succeeded_by = EXCLUDED.succeeded_by,
			parent_id = EXCLUDED.parent_id,
			peer = EXCLUDED.peer,
			request_reference = EXCLUDED.request_reference,
			notification_reference = EXCLUDED.notification_reference,
			shared_at = EXCLUDED.shared_at,
			source_attribute = EXCLUDED.source_attribute,
			deletion_status = EXCLUDED.deletion_status,
			deletion_date = EXCLUDED.deletion_date
	`
	var (
		peer, deletionStatus                                         sql.NullString
		succeeds, succeededBy, parentID, reqRef, notifRef, sourceRef sql.NullString
		sharedAt, deletionDate                                       sql.NullTime
	)
	succeeds = nullableID(a.Succeeds)
	succeededBy = nullableID(a.SucceededBy)
	parentID = nullableID(a.ParentID)
	if si := a.ShareInfo; si != nil {
		peer = sql.NullString{String: si.Peer.String(), Valid: true}
		sharedAt = sql.NullTime{Time: si.SharedAt, Valid: true}
		if si.RequestReference != nil {
			reqRef = sql.NullString{String: si.RequestReference.String(), Valid: true}
		}
		if si.NotificationReference != nil {
			notifRef = sql.NullString{String: si.NotificationReference.String(), Valid: true}
		}
		if si.SourceAttribute != nil {
			sourceRef = sql.NullString{String: si.SourceAttribute.String(), Valid: true}
		}
		if si.DeletionInfo != nil {
			deletionStatus = sql.NullString{String: string(si.DeletionInfo.Status), Valid: true}
			deletionDate = sql.NullTime{Time: si.DeletionInfo.Date, Valid: true}
		}
	}
	_, err := s.db.ExecContext(ctx, query,
		a.ID.String(), string(a.Role), string(a.Content.Kind), a.Content.Owner.String(),
		a.Content.Value.Type.String(), a.Content.Value.Value, a.Content.Key, a.CreatedAt,
		succeeds, succeededBy, parentID, peer, reqRef, notifRef, sharedAt, sourceRef,
		deletionStatus, deletionDate,
	)
	if err != nil {
		return fmt.Errorf("save attribute: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.AttributeID) (*Attribute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attributeColumns+` FROM attributes WHERE id = $1`, id.String())
	attribute, err := scanAttribute(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get attribute: %w", err)
	}
	return attribute, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.AttributeID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attributes WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete attribute: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, query Query) ([]*Attribute, error) {
	where, args, err := buildWhere(query)
	if err != nil {
		return nil, err
	}
	sqlQuery := `SELECT ` + attributeColumns + ` FROM attributes` + where + ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	defer rows.Close()

	var result []*Attribute
	for rows.Next() {
		attribute, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		result = append(result, attribute)
	}
	return result, rows.Err()
}

func buildWhere(query Query) (string, []any, error) {
	if len(query) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []any
	for _, c := range query {
		column, ok := columnsByField[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("unknown query field '%s'", c.Field)
		}
		switch c.Op {
		case OpEq:
			args = append(args, c.Values[0])
			clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
		case OpIn:
			args = append(args, pq.Array(c.Values))
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", column, len(args)))
		case OpNotIn:
			args = append(args, pq.Array(c.Values))
			clauses = append(clauses, fmt.Sprintf("(%s IS NOT NULL AND NOT %s = ANY($%d))", column, column, len(args)))
		case OpAbsent:
			if emptyMeansAbsent[column] {
				clauses = append(clauses, fmt.Sprintf("%s = ''", column))
			} else {
				clauses = append(clauses, fmt.Sprintf("%s IS NULL", column))
			}
		default:
			return "", nil, fmt.Errorf("unknown query op '%s'", c.Op)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttribute(row rowScanner) (*Attribute, error) {
	var (
		a                                                            Attribute
		idRaw, role, kind, owner, valueType, value, key              string
		createdAt                                                    time.Time
		succeeds, succeededBy, parentID, peer, reqRef, notifRef      sql.NullString
		sourceRef, deletionStatus                                    sql.NullString
		sharedAt, deletionDate                                       sql.NullTime
	)
	err := row.Scan(&idRaw, &role, &kind, &owner, &valueType, &value, &key, &createdAt,
		&succeeds, &succeededBy, &parentID, &peer, &reqRef, &notifRef,
		&sharedAt, &sourceRef, &deletionStatus, &deletionDate)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseAttributeID(idRaw)
	if err != nil {
		return nil, err
	}
	a.ID = id
	a.Role = Role(role)
	a.Content = Content{
		Kind:  ContentKind(kind),
		Owner: domain.Address(owner),
		Value: Value{Type: domain.ValueType(valueType), Value: value},
		Key:   key,
	}
	a.CreatedAt = createdAt
	a.Succeeds = parseNullableAttributeID(succeeds)
	a.SucceededBy = parseNullableAttributeID(succeededBy)
	a.ParentID = parseNullableAttributeID(parentID)
	if peer.Valid {
		si := &ShareInfo{Peer: domain.Address(peer.String), SharedAt: sharedAt.Time}
		if reqRef.Valid {
			if rid, err := domain.ParseRequestID(reqRef.String); err == nil {
				si.RequestReference = &rid
			}
		}
		if notifRef.Valid {
			if nid, err := domain.ParseNotificationID(notifRef.String); err == nil {
				si.NotificationReference = &nid
			}
		}
		si.SourceAttribute = parseNullableAttributeID(sourceRef)
		if deletionStatus.Valid {
			si.DeletionInfo = &DeletionInfo{
				Status: DeletionStatus(deletionStatus.String),
				Date:   deletionDate.Time,
			}
		}
		a.ShareInfo = si
	}
	return &a, nil
}

func nullableID(id *domain.AttributeID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullableAttributeID(v sql.NullString) *domain.AttributeID {
	if !v.Valid {
		return nil
	}
	id, err := domain.ParseAttributeID(v.String)
	if err != nil {
		return nil
	}
	return &id
}
