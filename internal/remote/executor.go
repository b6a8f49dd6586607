// Package remote replays outbox operations against the hosted database.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tillq/internal/syncer"
	"github.com/angelmondragon/tillq/pkg/config"
	dbpkg "github.com/angelmondragon/tillq/pkg/db"
	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
)

const defaultIDColumn = "id"

// GormExecutor maps each operation onto a row of the table named by its resource.
// Creates are idempotent inserts, so a replay after a lost acknowledgment is harmless.
type GormExecutor struct {
	db        *gorm.DB
	idColumn  string
	resources map[string]struct{}
}

func NewGormExecutor(db *gorm.DB, cfg config.RemoteConfig) (*GormExecutor, error) {
	if db == nil {
		return nil, errors.New("remote db is required")
	}
	idColumn := strings.TrimSpace(cfg.IDColumn)
	if idColumn == "" {
		idColumn = defaultIDColumn
	}
	resources := make(map[string]struct{}, len(cfg.Resources))
	for _, r := range cfg.Resources {
		r = strings.TrimSpace(r)
		if r != "" {
			resources[r] = struct{}{}
		}
	}
	if len(resources) == 0 {
		return nil, errors.New("at least one remote resource is required")
	}
	return &GormExecutor{db: db, idColumn: idColumn, resources: resources}, nil
}

// Register binds the executor to every allowed resource.
func (e *GormExecutor) Register(reg *syncer.ExecutorRegistry) {
	for resource := range e.resources {
		reg.RegisterAll(resource, e)
	}
}

func (e *GormExecutor) Execute(ctx context.Context, op models.Operation) error {
	if _, ok := e.resources[op.Resource]; !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("resource %q is not replicated", op.Resource))
	}

	switch op.Action {
	case enums.ActionCreate:
		return e.create(ctx, op)
	case enums.ActionUpdate:
		return e.update(ctx, op)
	case enums.ActionDelete:
		return e.delete(ctx, op)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported action %q", op.Action))
	}
}

func (e *GormExecutor) create(ctx context.Context, op models.Operation) error {
	row, err := decodeRow(op.Payload)
	if err != nil {
		return err
	}
	if _, ok := row[e.idColumn]; !ok {
		if op.RecordID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "create payload has no "+e.idColumn)
		}
		row[e.idColumn] = op.RecordID
	}
	err = e.db.WithContext(ctx).
		Table(op.Resource).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row).Error
	return classify(err, "insert "+op.Resource)
}

func (e *GormExecutor) update(ctx context.Context, op models.Operation) error {
	row, err := decodeRow(op.Payload)
	if err != nil {
		return err
	}
	delete(row, e.idColumn)
	if len(row) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "update payload has no columns besides "+e.idColumn)
	}
	res := e.db.WithContext(ctx).
		Table(op.Resource).
		Where(clause.Eq{Column: clause.Column{Name: e.idColumn}, Value: op.RecordID}).
		Updates(row)
	if res.Error != nil {
		return classify(res.Error, "update "+op.Resource)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s %s not found", op.Resource, op.RecordID))
	}
	return nil
}

// delete treats an already-missing row as success.
func (e *GormExecutor) delete(ctx context.Context, op models.Operation) error {
	err := e.db.WithContext(ctx).
		Exec("DELETE FROM ? WHERE ? = ?", clause.Table{Name: op.Resource}, clause.Column{Name: e.idColumn}, op.RecordID).
		Error
	return classify(err, "delete "+op.Resource)
}

func decodeRow(payload datatypes.JSON) (map[string]any, error) {
	row := map[string]any{}
	if len(payload) == 0 {
		return row, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload is not a JSON object")
	}
	for k, v := range row {
		row[k] = columnValue(v)
	}
	return row, nil
}

// columnValue flattens decoded JSON into values a SQL driver accepts.
func columnValue(v any) any {
	switch typed := v.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case map[string]any, []any:
		raw, err := json.Marshal(typed)
		if err != nil {
			return nil
		}
		return datatypes.JSON(raw)
	default:
		return v
	}
}

func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	if dbpkg.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
