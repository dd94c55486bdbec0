package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cardcat/internal/dataset"
	"cardcat/internal/dupe"
	"cardcat/internal/format"
	"cardcat/internal/logging"
	"cardcat/internal/remote"
	"cardcat/internal/schema"
	"cardcat/internal/textnorm"
)

var (
	// ErrSaveInProgress is returned when a save starts while another is in
	// flight. Nothing is written.
	ErrSaveInProgress = errors.New("catalog: save already in progress")
	// ErrOffline is returned when a save is attempted without network.
	ErrOffline = errors.New("catalog: offline")
	// ErrReadOnly is returned when no write endpoint is configured.
	ErrReadOnly = errors.New("catalog: no write endpoint configured")
	// ErrNoHeader is returned when no dataset header is loaded, so the
	// payload cannot be keyed by column.
	ErrNoHeader = errors.New("catalog: header not loaded")
	// ErrDiscarded is returned when a duplicate was resolved by discarding.
	ErrDiscarded = errors.New("catalog: duplicate discarded")
	// ErrNotFound is returned when a record id is not in the dataset.
	ErrNotFound = errors.New("catalog: record not found")
	// ErrUnlocated is returned when a merge target has no row to update.
	ErrUnlocated = errors.New("catalog: duplicate row not located")
)

// ValidationError rejects a form before anything touches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Form holds user input keyed by form field name (see schema.FormFields).
type Form map[string]string

// Clone returns a trimmed copy of f.
func (f Form) Clone() Form {
	out := make(Form, len(f))
	for k, v := range f {
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// Normalize returns a trimmed copy of f with an all-digit collector number
// masked as NNN/NNN.
func (f Form) Normalize() Form {
	out := f.Clone()
	if v, ok := out["num"]; ok {
		out["num"] = format.IdentityMask(v)
	}
	return out
}

// Validate checks a form: a name is required, HP and quantity must be
// integers and the price a number, when present.
func Validate(f Form) error {
	if strings.TrimSpace(f["nombre"]) == "" {
		return &ValidationError{Field: "nombre", Message: "Falta el nombre."}
	}
	if v := strings.TrimSpace(f["nivel"]); v != "" && !textnorm.IsInteger(v) {
		return &ValidationError{Field: "nivel", Message: "HP debe ser entero."}
	}
	if v := strings.TrimSpace(f["cantidad"]); v != "" && !textnorm.IsInteger(v) {
		return &ValidationError{Field: "cantidad", Message: "Cantidad debe ser entero."}
	}
	if v := strings.TrimSpace(f["precio"]); v != "" && !textnorm.IsNumber(v) {
		return &ValidationError{Field: "precio", Message: "Precio debe ser número."}
	}
	return nil
}

// SaveRequest is one save. An empty EditID adds a new card.
type SaveRequest struct {
	Form   Form
	EditID string
	// Resolver answers duplicate collisions. Nil discards.
	Resolver dupe.Resolver
}

// Merge describes a quantity merge.
type Merge struct {
	Existing int `json:"existing"`
	Incoming int `json:"incoming"`
	Total    int `json:"total"`
}

// SaveResult describes a finished or aborted save.
type SaveResult struct {
	Action     string
	RowIndex   string
	ID         string
	Collision  *dupe.Collision
	Resolution dupe.Resolution
	Merge      *Merge
	Payload    remote.Payload
	Response   remote.Response
	// Message is the success text.
	Message string
	Reload  *LoadResult
}

// Save runs the save workflow: validate, check connectivity, detect a
// duplicate and await its resolution, build the payload, remember list
// values, write, reload.
func (s *Service) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	var res SaveResult
	if !s.saving.TryAcquire(1) {
		logging.Audit().Log(logging.AuditEvent{EventType: logging.AuditSaveBlocked, Message: "save already in flight"})
		return res, ErrSaveInProgress
	}
	defer s.saving.Release(1)
	s.setStatus(func(st *Status) { st.Saving = true })
	defer s.setStatus(func(st *Status) { st.Saving = false })

	form := req.Form.Normalize()
	if err := Validate(form); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			s.notify(ctx, LevelWarn, ve.Message)
		}
		return res, err
	}
	if s.sink == nil {
		s.notify(ctx, LevelError, "No hay endpoint de escritura configurado.")
		return res, ErrReadOnly
	}
	if !s.online.Online(ctx) {
		s.notify(ctx, LevelWarn, "Estás offline. No se puede guardar ahora")
		return res, ErrOffline
	}

	d := s.holder.Load()
	if req.EditID != "" {
		res.RowIndex = d.RowIndexByID(req.EditID)
		if res.RowIndex == "" {
			s.notify(ctx, LevelError, "No encontré la carta a editar.")
			return res, fmt.Errorf("%w: %s", ErrNotFound, req.EditID)
		}
		res.ID = req.EditID
	}

	if res.RowIndex == "" && d != nil {
		candidate := dupe.FromValues(map[schema.Key]string{
			schema.KeyNum:     form["num"],
			schema.KeyEdicion: form["edicion"],
			schema.KeyIdioma:  form["idioma"],
			schema.KeyNombre:  form["nombre"],
		})
		if c, ok := dupe.Find(d.Records, d.Index, candidate); ok {
			res.Collision = &c
			res.Resolution = dupe.Await(ctx, req.Resolver, c)
			logging.Audit().Duplicate(c.ID, res.Resolution.String())

			switch res.Resolution {
			case dupe.Discard:
				s.notify(ctx, LevelInfo, "Listo, no se agregó")
				return res, ErrDiscarded
			case dupe.Merge:
				var rowIndex string
				switch {
				case !d.Index.Has(schema.KeyID):
					// Without an identity column the row position is the identity.
					rowIndex = strconv.Itoa(dataset.RowNumber(c.Position))
				case c.ID != "":
					rowIndex = d.RowIndexByID(c.ID)
				}
				if rowIndex == "" {
					s.notify(ctx, LevelError, "Encontré duplicado pero no pude ubicar la fila.")
					return res, ErrUnlocated
				}
				total, a, b := dupe.MergeQuantity(c.Quantity, form["cantidad"])
				form["cantidad"] = strconv.Itoa(total)
				res.Merge = &Merge{Existing: a, Incoming: b, Total: total}
				res.RowIndex, res.ID = rowIndex, c.ID
				s.notify(ctx, LevelSuccess, fmt.Sprintf("Duplicada: sumé cantidad (%d + %d = %d)", a, b, total))
			}
		}
	}

	if !d.HasHeader() {
		s.notify(ctx, LevelError, "No se pudo preparar el registro (header no cargado).")
		return res, ErrNoHeader
	}
	if res.ID == "" {
		res.ID = s.idPrefix + s.newID()
	}
	res.Action = remote.ActionAdd
	if res.RowIndex != "" {
		res.Action = remote.ActionUpdate
	}
	res.Payload = remote.Payload{
		Action:   res.Action,
		RowIndex: res.RowIndex,
		ID:       res.ID,
		Data:     buildData(d.Header, d.Index, res.ID, form),
	}

	if err := s.lists.RememberForm(ctx, form); err != nil {
		logging.SaveWarn("remember list values: %v", err)
	}

	started := s.now()
	logging.Save("saving %s id=%s rowIndex=%q", res.Action, res.ID, res.RowIndex)
	resp, err := s.sink.Post(ctx, res.Payload)
	res.Response = resp
	logging.Audit().Save(res.Action, res.ID, res.RowIndex, s.now().Sub(started), err)
	if err != nil {
		logging.SaveWarn("save failed: %v", err)
		s.notify(ctx, LevelError, "No se pudo guardar (conexión o bloqueo).")
		return res, fmt.Errorf("save %s: %w", res.Action, err)
	}

	res.Message = resp.Msg
	if res.Message == "" {
		res.Message = "Guardado"
	}
	s.notify(ctx, LevelSuccess, res.Message)

	reload := s.Load(ctx, true)
	res.Reload = &reload
	return res, nil
}

// buildData keys the row by literal header text. Columns missing from the
// header are skipped. When two keys resolved to the same column the first
// one written keeps it.
func buildData(header []string, index schema.ColumnIndex, id string, form Form) map[string]string {
	data := make(map[string]string, len(schema.FormFields)+1)
	claimed := make(map[int]bool, len(schema.FormFields)+1)
	set := func(k schema.Key, v string) {
		i, ok := index.Lookup(k)
		if !ok || i >= len(header) || claimed[i] {
			return
		}
		name := strings.TrimSpace(header[i])
		if name == "" {
			return
		}
		claimed[i] = true
		data[name] = strings.TrimSpace(v)
	}
	set(schema.KeyID, id)
	for _, f := range schema.FormFields {
		set(schema.FieldKey(f), form[f])
	}
	return data
}
