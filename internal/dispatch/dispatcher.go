package dispatch

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/ocx/drawserver/internal/auth"
	"github.com/ocx/drawserver/internal/catalog"
	"github.com/ocx/drawserver/internal/database"
	"github.com/ocx/drawserver/internal/logging"
	"github.com/ocx/drawserver/internal/metrics"
	"github.com/ocx/drawserver/internal/protocol"
	"github.com/ocx/drawserver/internal/session"
	"github.com/ocx/drawserver/internal/wire"
)

// HeartbeatCycles is how many ticks elapse between heartbeat sweeps.
const HeartbeatCycles = 50

// Dispatcher owns the server's tick loop and every shared resource a
// request handler needs.
type Dispatcher struct {
	listen   *wire.ListenSocket
	manager  *session.Manager
	catalogs *Catalogs
	store    *database.Store
	tokens   *auth.RepeatTokenTable
	queue    *SendQueue
	log      *logging.Logger
	metrics  *metrics.Metrics

	backupDir   string
	refreshRate time.Duration

	decoders map[session.Handle]*protocol.Decoder

	tick     uint64
	consoleC chan string
	stop     bool
}

// Config bundles everything NewDispatcher needs besides the catalogs and
// send queue it constructs itself.
type Config struct {
	Listen      *wire.ListenSocket
	Manager     *session.Manager
	Store       *database.Store
	Tokens      *auth.RepeatTokenTable
	Log         *logging.Logger
	Metrics     *metrics.Metrics
	BackupDir   string
	RefreshRate time.Duration

	// Cache, if set, attaches a write-through hot cache to every catalog
	// and is used once at startup to warm them from their last run's
	// data before the first database rebuild completes. Nil means
	// catalogs run uncached, rebuilding from the database alone.
	Cache catalog.HotCache
}

// New builds a Dispatcher ready to Run.
func New(cfg Config) *Dispatcher {
	log := cfg.Log
	if log == nil {
		log = logging.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	refresh := cfg.RefreshRate
	if refresh <= 0 {
		refresh = 20 * time.Millisecond
	}
	catalogs := NewCatalogs()
	if cfg.Cache != nil {
		catalogs.AttachCache(cfg.Cache, "ocx:catalog:")
		catalogs.WarmAll(context.Background())
	}
	d := &Dispatcher{
		listen:      cfg.Listen,
		manager:     cfg.Manager,
		catalogs:    catalogs,
		store:       cfg.Store,
		tokens:      cfg.Tokens,
		queue:       NewSendQueue(),
		log:         log,
		metrics:     m,
		backupDir:   cfg.BackupDir,
		refreshRate: refresh,
		decoders:    make(map[session.Handle]*protocol.Decoder),
		consoleC:    make(chan string, 8),
	}
	go d.readConsole()
	return d
}

// readConsole feeds console lines into consoleC from a dedicated
// goroutine: bufio.Scanner.Scan blocks, so it can't run on the tick
// goroutine directly.
func (d *Dispatcher) readConsole() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		d.consoleC <- scanner.Text()
	}
}

// Run drives the tick loop until ctx is cancelled or console input asks
// for shutdown.
func (d *Dispatcher) Run(ctx context.Context) {
	for !d.stop {
		select {
		case <-ctx.Done():
			return
		default:
		}
		start := time.Now()
		d.runTick(ctx)
		elapsed := time.Since(start)
		d.metrics.TickDuration.Observe(elapsed.Seconds())
		if sleep := d.refreshRate - elapsed; sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (d *Dispatcher) runTick(ctx context.Context) {
	d.tick++

	// Step 1: one non-blocking accept attempt.
	if d.listen != nil {
		if conn, res := d.listen.TryAccept(); res == wire.Success {
			go d.manager.Accept(conn)
		}
	}

	// Step 2: advance every waiting connection's handshake step 5 by one
	// non-blocking attempt.
	d.manager.Tick()

	// Step 3: receive at most one message per connected connection.
	for _, c := range d.manager.Connected() {
		d.receiveOne(c)
	}
	for _, h := range d.manager.PruneDead() {
		delete(d.decoders, h)
		d.log.Log("connection %d timed out", h)
		d.metrics.ConnectionsPruned.WithLabelValues("heartbeat_timeout").Inc()
	}

	d.metrics.ConnectionsConnected.Set(float64(len(d.manager.Connected())))
	d.metrics.ConnectionsWaiting.Set(float64(d.manager.WaitingCount()))

	// Step 4: drain the send queue.
	d.metrics.SendQueueDepth.Set(float64(d.queue.Len()))
	d.queue.Drain(func(h session.Handle, frame []byte) {
		c, ok := d.manager.Get(h)
		if !ok {
			return
		}
		if c.Conn.Send(frame) == wire.ErrSocketDead {
			d.manager.Disconnect(h)
		}
	})

	// Step 5: heartbeat sweep.
	if d.tick%HeartbeatCycles == 0 {
		d.manager.Heartbeat()
		d.metrics.HeartbeatsSent.Add(float64(len(d.manager.Connected())))
	}

	// Step 6: one line of non-blocking console input.
	d.consumeConsoleInput()
}

// receiveOne polls one connected connection for a single inbound frame,
// decrypts it, verifies the session token, and routes whatever follows
// to the request handler.
func (d *Dispatcher) receiveOne(c *session.Connection) {
	dec, ok := d.decoders[c.Handle]
	if !ok {
		dec = protocol.NewDecoder(true)
		d.decoders[c.Handle] = dec
	}

	res, status := c.Conn.Receive(dec)
	switch res {
	case wire.NoData:
		return
	case wire.ErrSocketDead:
		d.manager.Disconnect(c.Handle)
		delete(d.decoders, c.Handle)
		d.log.Log("connection %d (%s) disconnected: socket dead", c.Handle, c.Email)
		return
	case wire.Disconnected:
		d.handleDisconnect(c, dec)
		delete(d.decoders, c.Handle)
		return
	}
	if status != protocol.Decoded {
		return
	}
	defer dec.Reset()

	if dec.Tag() == protocol.TagHeartbeat {
		// Liveness only; Conn.Receive already cleared the waiting flag.
		return
	}

	em, err := dec.EncryptedMessage()
	if err != nil {
		d.log.Log("connection %d sent a non-AES frame after authentication", c.Handle)
		return
	}
	plaintext, err := em.Decrypt(c.SessionKey)
	if err != nil {
		d.log.Log("connection %d sent an undecryptable frame: %v", c.Handle, err)
		return
	}
	if len(plaintext) < 8 {
		return
	}
	token := binary.LittleEndian.Uint64(plaintext[:8])
	if token != c.SessionToken {
		// Wrong session token: drop silently.
		return
	}

	d.handle(c, plaintext[8:])
}

// handleDisconnect logs and tears down a connection that sent a graceful
// Disconnect frame, switching on the DisconnectCode carried in the
// message body.
func (d *Dispatcher) handleDisconnect(c *session.Connection, dec *protocol.Decoder) {
	defer dec.Reset()

	var code protocol.DisconnectCode
	if body := dec.PlainPayload(); len(body) == 1 {
		code = protocol.DisconnectCode(body[0])
	}

	if code == protocol.DisconnectNormal {
		d.log.Log("connection %d (%s) disconnected", c.Handle, c.Email)
	} else {
		d.log.Log("connection %d (%s) disconnected: %s", c.Handle, c.Email, code)
	}
	d.manager.Disconnect(c.Handle)
	d.metrics.ConnectionsPruned.WithLabelValues("client_disconnect").Inc()
}

// consumeConsoleInput drains at most one buffered console line per tick.
func (d *Dispatcher) consumeConsoleInput() {
	select {
	case line := <-d.consoleC:
		d.HandleConsoleLine(line)
	default:
	}
}

// HandleConsoleLine processes one line of operator input.
func (d *Dispatcher) HandleConsoleLine(line string) {
	switch line {
	case "quit", "exit":
		d.stop = true
		d.log.Log("shutting down on operator command")
	case "list users":
		// One atomic line, so concurrent sink writers can't interleave
		// the roster.
		sb, commit := d.log.Scoped()
		sb.WriteString("connected users:")
		for _, c := range d.manager.Connected() {
			fmt.Fprintf(sb, " [%d] %s", c.Handle, c.Email)
		}
		commit(d.log.Log)
	}
}

// rebuildIfDirty rebuilds kind's catalog from the database if its dirty
// flag is set, resolving the Material-before-BackingStrip and
// ApertureShape-before-Aperture ordering dependencies inline.
func (d *Dispatcher) rebuildIfDirty(ctx context.Context, kind catalog.RequestKind) error {
	switch kind {
	case catalog.SourceProductTable:
		if !d.catalogs.Products.Dirty() {
			return nil
		}
		data, err := d.store.BuildProductTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.Products.Source(data))

	case catalog.SourceApertureShapeTable:
		if !d.catalogs.ApertureShapes.Dirty() {
			return nil
		}
		data, _, err := d.store.BuildApertureShapeTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.ApertureShapes.Source(data))

	case catalog.SourceApertureTable:
		if err := d.rebuildIfDirty(ctx, catalog.SourceApertureShapeTable); err != nil {
			return err
		}
		if !d.catalogs.Apertures.Dirty() {
			return nil
		}
		_, shapeIDToHandle, err := d.store.BuildApertureShapeTable(ctx)
		if err != nil {
			return err
		}
		data, err := d.store.BuildApertureTable(ctx, shapeIDToHandle)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.Apertures.Source(data))

	case catalog.SourceMaterialTable:
		if !d.catalogs.Materials.Dirty() {
			return nil
		}
		data, _, err := d.store.BuildMaterialTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.Materials.Source(data))

	case catalog.SourceBackingStripsTable:
		if err := d.rebuildIfDirty(ctx, catalog.SourceMaterialTable); err != nil {
			return err
		}
		if !d.catalogs.BackingStrips.Dirty() {
			return nil
		}
		_, materialIDToHandle, err := d.store.BuildMaterialTable(ctx)
		if err != nil {
			return err
		}
		data, err := d.store.BuildBackingStripTable(ctx, materialIDToHandle)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.BackingStrips.Source(data))

	case catalog.SourceSideIronTable:
		if !d.catalogs.SideIrons.Dirty() {
			return nil
		}
		data, err := d.store.BuildSideIronTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.SideIrons.Source(data))

	case catalog.SourceSideIronPricesTable:
		if !d.catalogs.SideIronPrices.Dirty() {
			return nil
		}
		data, err := d.store.BuildSideIronPriceTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.SideIronPrices.Source(data))

	case catalog.SourceMachineTable:
		if !d.catalogs.Machines.Dirty() {
			return nil
		}
		data, err := d.store.BuildMachineTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.Machines.Source(data))

	case catalog.SourceMachineDeckTable:
		if !d.catalogs.MachineDecks.Dirty() {
			return nil
		}
		data, err := d.store.BuildMachineDeckTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.MachineDecks.Source(data))

	case catalog.SourceExtraPricesTable:
		if !d.catalogs.ExtraPrices.Dirty() {
			return nil
		}
		data, err := d.store.BuildExtraPriceTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.ExtraPrices.Source(data))

	case catalog.SourceLabourTimesTable:
		if !d.catalogs.LabourTimes.Dirty() {
			return nil
		}
		data, err := d.store.BuildLabourTimeTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.LabourTimes.Source(data))

	case catalog.SourcePowderCoatingTable:
		if !d.catalogs.PowderCoatings.Dirty() {
			return nil
		}
		data, err := d.store.BuildPowderCoatingTable(ctx)
		if err != nil {
			return err
		}
		return d.sourceAndCount(kind, d.catalogs.PowderCoatings.Source(data))

	default:
		return fmt.Errorf("dispatch: %s is not a sourceable table kind", kind)
	}
}

func (d *Dispatcher) sourceAndCount(kind catalog.RequestKind, err error) error {
	if err != nil {
		return err
	}
	d.metrics.CatalogRebuilds.WithLabelValues(kind.String()).Inc()
	return nil
}

// rawSourceFor returns kind's catalog's most recently sourced raw
// buffer, or nil if unknown.
func (d *Dispatcher) rawSourceFor(kind catalog.RequestKind) []byte {
	switch kind {
	case catalog.SourceProductTable:
		return d.catalogs.Products.RawSource()
	case catalog.SourceApertureTable:
		return d.catalogs.Apertures.RawSource()
	case catalog.SourceApertureShapeTable:
		return d.catalogs.ApertureShapes.RawSource()
	case catalog.SourceMaterialTable:
		return d.catalogs.Materials.RawSource()
	case catalog.SourceBackingStripsTable:
		return d.catalogs.BackingStrips.RawSource()
	case catalog.SourceSideIronTable:
		return d.catalogs.SideIrons.RawSource()
	case catalog.SourceSideIronPricesTable:
		return d.catalogs.SideIronPrices.RawSource()
	case catalog.SourceMachineTable:
		return d.catalogs.Machines.RawSource()
	case catalog.SourceMachineDeckTable:
		return d.catalogs.MachineDecks.RawSource()
	case catalog.SourceExtraPricesTable:
		return d.catalogs.ExtraPrices.RawSource()
	case catalog.SourceLabourTimesTable:
		return d.catalogs.LabourTimes.RawSource()
	case catalog.SourcePowderCoatingTable:
		return d.catalogs.PowderCoatings.RawSource()
	default:
		return nil
	}
}

// markDirty flags kind's catalog (and anything depending on it) for
// rebuild, used after an AddComponent insert.
func (d *Dispatcher) markDirty(kind catalog.RequestKind) {
	switch kind {
	case catalog.SourceProductTable:
		d.catalogs.Products.MarkDirty()
	case catalog.SourceApertureTable:
		d.catalogs.Apertures.MarkDirty()
	case catalog.SourceApertureShapeTable:
		d.catalogs.ApertureShapes.MarkDirty()
	case catalog.SourceMaterialTable:
		d.catalogs.Materials.MarkDirty()
	case catalog.SourceBackingStripsTable:
		d.catalogs.BackingStrips.MarkDirty()
	case catalog.SourceSideIronTable:
		d.catalogs.SideIrons.MarkDirty()
	case catalog.SourceSideIronPricesTable:
		d.catalogs.SideIronPrices.MarkDirty()
	case catalog.SourceMachineTable:
		d.catalogs.Machines.MarkDirty()
	case catalog.SourceMachineDeckTable:
		d.catalogs.MachineDecks.MarkDirty()
	case catalog.SourceExtraPricesTable:
		d.catalogs.ExtraPrices.MarkDirty()
	case catalog.SourceLabourTimesTable:
		d.catalogs.LabourTimes.MarkDirty()
	case catalog.SourcePowderCoatingTable:
		d.catalogs.PowderCoatings.MarkDirty()
	}
}
