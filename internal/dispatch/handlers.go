package dispatch

import (
	"context"
	"time"

	"github.com/ocx/drawserver/internal/catalog"
	"github.com/ocx/drawserver/internal/cryptoutil"
	"github.com/ocx/drawserver/internal/database"
	"github.com/ocx/drawserver/internal/protocol"
	"github.com/ocx/drawserver/internal/session"
)

// handle routes one decrypted, token-verified request payload to its
// handler by switching on the leading RequestKind.
func (d *Dispatcher) handle(c *session.Connection, payload []byte) {
	r := catalog.NewReader(payload)
	kind, err := r.RequestKind()
	if err != nil {
		d.log.Log("connection %d sent a malformed request: %v", c.Handle, err)
		return
	}
	d.metrics.RequestsHandled.WithLabelValues(kind.String()).Inc()

	switch kind {
	case catalog.RepeatTokenRequest:
		d.handleRepeatTokenRequest(c)
	case catalog.EmailRequest:
		d.handleEmailRequest(c)
	case catalog.SearchQuery:
		d.handleSearchQuery(c, r)
	case catalog.DrawingInsert:
		d.handleDrawingInsert(c, r)
	case catalog.DrawingDetails:
		d.handleDrawingDetails(c, r)
	case catalog.NextDrawingNumber:
		d.handleNextDrawingNumber(c, r)
	case catalog.CreateBackup:
		d.handleCreateBackup(c)
	case catalog.AddComponent:
		d.handleAddComponent(c, r)
	case catalog.SourceProductTable, catalog.SourceApertureTable, catalog.SourceApertureShapeTable,
		catalog.SourceMaterialTable, catalog.SourceSideIronTable, catalog.SourceSideIronPricesTable,
		catalog.SourceMachineTable, catalog.SourceMachineDeckTable, catalog.SourceExtraPricesTable,
		catalog.SourceBackingStripsTable, catalog.SourceLabourTimesTable, catalog.SourcePowderCoatingTable:
		d.handleSourceTable(c, kind)
	default:
		d.log.Log("connection %d sent unknown request kind %s", c.Handle, kind)
	}
}

func (d *Dispatcher) sendTo(h session.Handle, payload []byte) {
	c, ok := d.manager.Get(h)
	if !ok {
		return
	}
	frame, err := encodeEncrypted(payload, c.SessionKey)
	if err != nil {
		d.log.Error(true, "failed to encrypt outbound frame for connection %d: %v", h, err)
		return
	}
	d.queue.Enqueue(h, frame)
}

func (d *Dispatcher) broadcast(payload []byte) {
	for _, c := range d.manager.Connected() {
		d.sendTo(c.Handle, payload)
	}
}

// handleRepeatTokenRequest issues a fresh repeat token for the already
// (JWT-)authenticated connection.
func (d *Dispatcher) handleRepeatTokenRequest(c *session.Connection) {
	tok, err := d.tokens.Issue(c.Email)
	if err != nil {
		d.log.Error(true, "failed to issue repeat token for %s: %v", c.Email, err)
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}
	w := catalog.NewWriter()
	w.Uint32(uint32(ResponseSuccess))
	w.Raw(tok[:])
	d.sendTo(c.Handle, w.Bytes())
}

// handleEmailRequest replies with the connection's authenticated email:
// a response code word, then the 1-byte-length-prefixed address.
func (d *Dispatcher) handleEmailRequest(c *session.Connection) {
	w := catalog.NewWriter()
	w.Uint32(uint32(ResponseSuccess))
	w.String(c.Email)
	d.sendTo(c.Handle, w.Bytes())
}

// handleSearchQuery parses the one supported filter term (an optional
// material id; 0 means unfiltered) and replies with a compressed
// search-result bulk frame. Free-form search syntax is a client concern;
// this layer only binds the structured filter into the row query.
func (d *Dispatcher) handleSearchQuery(c *session.Connection, r *catalog.Reader) {
	materialID, err := r.Uint32()
	if err != nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var body []byte
	if materialID == 0 {
		body, err = d.store.ExecuteSearchQuery(ctx, "")
	} else {
		body, err = d.store.ExecuteSearchQuery(ctx, "dd.material_id = $1", materialID)
	}
	if err != nil {
		d.log.Error(true, "search query failed: %v", err)
		d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
		return
	}

	w := catalog.NewWriter()
	w.RequestKind(catalog.SearchQuery)
	w.Raw(body)
	d.sendTo(c.Handle, w.Bytes())
}

// handleDrawingInsert checks existence, writes the drawing honouring the
// force bit, and broadcasts refreshed next-drawing-number hints to every
// connection. No search state is cached: the next search response
// recomputes its compression schema maxima, so they cover the new row.
func (d *Dispatcher) handleDrawingInsert(c *session.Connection, r *catalog.Reader) {
	force, err := r.Bool()
	if err != nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}
	drawingNumber, err := r.String()
	if err != nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}
	data, err := r.Raw(r.Remaining())
	if err != nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !force {
		exists, err := d.store.DrawingExists(ctx, drawingNumber)
		if err != nil {
			d.log.Error(true, "drawing exists check failed: %v", err)
			d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
			return
		}
		if exists == database.DrawingExists {
			d.sendTo(c.Handle, responseWord(ResponseDrawingAlreadyExists))
			return
		}
	}

	if err := d.store.InsertDrawing(ctx, drawingNumber, data, force); err != nil {
		d.log.Error(true, "drawing insert failed: %v", err)
		d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
		return
	}
	d.log.Changelog("%s inserted drawing %s", c.Email, drawingNumber)

	d.sendTo(c.Handle, responseWord(ResponseSuccess))

	auto, err := d.store.NextAutomaticDrawingNumber(ctx)
	if err != nil {
		d.log.Error(true, "next automatic drawing number failed: %v", err)
		return
	}
	manual, err := d.store.NextManualDrawingNumber(ctx)
	if err != nil {
		d.log.Error(true, "next manual drawing number failed: %v", err)
		return
	}
	w := catalog.NewWriter()
	w.RequestKind(catalog.NextDrawingNumber)
	w.String(auto)
	w.String(manual)
	d.broadcast(w.Bytes())
}

// handleDrawingDetails fetches a drawing's opaque payload by number.
func (d *Dispatcher) handleDrawingDetails(c *session.Connection, r *catalog.Reader) {
	drawingNumber, err := r.String()
	if err != nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, found, err := d.store.DrawingDetails(ctx, drawingNumber)
	if err != nil {
		d.log.Error(true, "drawing details query failed: %v", err)
		d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
		return
	}
	w := catalog.NewWriter()
	if !found {
		w.Uint32(uint32(ResponseDrawingNotFound))
		d.sendTo(c.Handle, w.Bytes())
		return
	}
	w.Uint32(uint32(ResponseSuccess))
	w.Raw(data)
	d.sendTo(c.Handle, w.Bytes())
}

// handleNextDrawingNumber replies with the automatic or manual
// next-number hint.
func (d *Dispatcher) handleNextDrawingNumber(c *session.Connection, r *catalog.Reader) {
	manual, err := r.Bool()
	if err != nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var number string
	if manual {
		number, err = d.store.NextManualDrawingNumber(ctx)
	} else {
		number, err = d.store.NextAutomaticDrawingNumber(ctx)
	}
	if err != nil {
		d.log.Error(true, "next drawing number failed: %v", err)
		d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
		return
	}
	w := catalog.NewWriter()
	w.Uint32(uint32(ResponseSuccess))
	w.String(number)
	d.sendTo(c.Handle, w.Bytes())
}

// handleCreateBackup dumps the database to the configured backup
// directory.
func (d *Dispatcher) handleCreateBackup(c *session.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	path, err := d.store.CreateBackup(ctx, d.backupDir, time.Now())
	if err != nil {
		d.log.Error(true, "backup failed: %v", err)
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}
	d.log.Changelog("%s triggered a backup to %s", c.Email, path)
	d.sendTo(c.Handle, responseWord(ResponseSuccess))
}

// handleSourceTable rebuilds kind's catalog if dirty, then replays its
// raw source buffer to the requesting connection. Rebuilds honour the
// Material-before-BackingStrip and ApertureShape-before-Aperture
// ordering.
func (d *Dispatcher) handleSourceTable(c *session.Connection, kind catalog.RequestKind) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// When serving a kind whose entities reference another catalog by
	// handle, a dirty prerequisite is rebuilt as part of this request;
	// its refreshed stream goes out first so the client can resolve the
	// cross-catalog handles the moment the requested stream lands.
	prereq, hasPrereq := catalog.RequestKind(0), false
	switch kind {
	case catalog.SourceApertureTable:
		if d.catalogs.ApertureShapes.Dirty() {
			prereq, hasPrereq = catalog.SourceApertureShapeTable, true
		}
	case catalog.SourceBackingStripsTable:
		if d.catalogs.Materials.Dirty() {
			prereq, hasPrereq = catalog.SourceMaterialTable, true
		}
	}

	if err := d.rebuildIfDirty(ctx, kind); err != nil {
		d.log.Error(true, "failed to rebuild %s: %v", kind, err)
		d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
		return
	}

	if hasPrereq {
		if data := d.rawSourceFor(prereq); data != nil {
			d.sendTo(c.Handle, data)
		}
	}

	data := d.rawSourceFor(kind)
	if data == nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}
	d.sendTo(c.Handle, data)
}

// handleAddComponent inserts one new component row, refreshes its
// catalog, and broadcasts the rebuilt stream to every connection. The
// payload after the outer RequestKind is [component kind (one of the
// Source*Table values) | entity-specific bytes in the same layout the
// catalog decoder for that kind expects].
func (d *Dispatcher) handleAddComponent(c *session.Connection, r *catalog.Reader) {
	componentKind, err := r.RequestKind()
	if err != nil {
		d.sendTo(c.Handle, responseWord(ResponseFailure))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.insertComponent(ctx, componentKind, r); err != nil {
		d.log.Error(true, "add component (%s) failed: %v", componentKind, err)
		d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
		return
	}
	d.log.Changelog("%s added a new %s component", c.Email, componentKind)

	d.markDirty(componentKind)
	if err := d.rebuildIfDirty(ctx, componentKind); err != nil {
		d.log.Error(true, "failed to rebuild %s after insert: %v", componentKind, err)
		d.sendTo(c.Handle, responseWord(ResponseDatabaseError))
		return
	}

	d.sendTo(c.Handle, responseWord(ResponseSuccess))
	if data := d.rawSourceFor(componentKind); data != nil {
		d.broadcast(data)
	}
}

func responseWord(code ResponseCode) []byte {
	w := catalog.NewWriter()
	w.Uint32(uint32(code))
	return w.Bytes()
}

// encodeEncrypted wraps payload in a fresh AES frame under key and
// renders its wire bytes, the single choke point every handler response
// passes through before reaching the send queue.
func encodeEncrypted(payload []byte, key cryptoutil.AesKey) ([]byte, error) {
	msg, err := protocol.NewEncryptedMessage(payload, key)
	if err != nil {
		return nil, err
	}
	return msg.Encode(), nil
}
