// Package engine implements the reliability layer over a datagram channel:
// the three-phase REQ/ACK/RES exchange, chunking and reassembly of large
// payloads, per-request retry and timeout, optional compression, and the
// garbage collection of abandoned state.
package engine

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"rdgram/pkg/assemble"
	"rdgram/pkg/compress"
	"rdgram/pkg/protocol"
	"rdgram/pkg/snowflake"
	"rdgram/pkg/track"
	"rdgram/pkg/transport"
)

var (
	// ErrClosed reports an operation on a closed engine.
	ErrClosed = errors.New("engine: closed")
	// ErrRequestTimeout reports a request that was not resolved before its
	// deadline: a single request without its RES (an ACK alone does not
	// resolve it), or a chunk without its ACK.
	ErrRequestTimeout = errors.New("engine: request timed out")
)

// Delivery is one logical inbound message, after reassembly and
// decompression. RequestID is the wire id (base id for chunked messages),
// usable with Respond.
type Delivery struct {
	Body      any
	Remote    transport.Remote
	RequestID string
}

// Handler consumes logical messages.
type Handler func(d Delivery)

// Passthrough consumes datagrams that are not protocol envelopes.
type Passthrough func(b []byte, from transport.Remote)

// Done reports the outcome of a send. For a single request, value is the
// response body once the peer answers with a RES; a chunked send completes
// with a nil value when every chunk is acknowledged. err is non-nil on
// timeout or engine failure.
type Done func(value any, err error)

// Engine drives the protocol over one datagram connection.
type Engine struct {
	conn    transport.Conn
	ids     *snowflake.Generator
	pipe    *compress.Pipeline
	reasm   *assemble.Reassembler
	tracker *track.Tracker
	sched   track.Scheduler

	optsMu sync.RWMutex
	opts   Options

	cbMu          sync.RWMutex
	onMessage     Handler
	onPassthrough Passthrough

	gcStop    chan struct{}
	closeOnce sync.Once
	closedMu  sync.RWMutex
	closed    bool

	stats statCounters
}

// New builds an engine on conn and starts its receive path and cleanup
// loop. conn is owned by the engine from here on: Close tears it down.
func New(conn transport.Conn, opts Options) (*Engine, error) {
	opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ids, err := snowflake.New(opts.WorkerID)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		conn:    conn,
		ids:     ids,
		pipe:    compress.NewPipeline(opts.Compression),
		reasm:   assemble.New(opts.ReassemblyTimeout),
		sched:   track.NewScheduler(),
		opts:    opts,
		gcStop:  make(chan struct{}),
	}
	e.tracker = track.New(e.sched)
	conn.OnData(e.receive)
	go e.gcLoop(opts.CleanupInterval)
	return e, nil
}

// OnMessage installs the logical-message handler.
func (e *Engine) OnMessage(h Handler) {
	e.cbMu.Lock()
	e.onMessage = h
	e.cbMu.Unlock()
}

// OnPassthrough installs the handler for non-protocol datagrams.
func (e *Engine) OnPassthrough(p Passthrough) {
	e.cbMu.Lock()
	e.onPassthrough = p
	e.cbMu.Unlock()
}

// Configure re-keys the engine with new options. In-flight requests keep
// the timers they were armed with.
func (e *Engine) Configure(opts Options) error {
	opts.withDefaults()
	if err := opts.validate(); err != nil {
		return err
	}
	e.optsMu.Lock()
	opts.WorkerID = e.opts.WorkerID // the generator is not rebuilt
	e.opts = opts
	e.optsMu.Unlock()
	e.pipe.Reconfigure(opts.Compression)
	e.reasm.SetTimeout(opts.ReassemblyTimeout)
	return nil
}

// Close stops the cleanup loop, drops all tracker and assembly state
// without invoking callbacks, and closes the datagram connection.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closedMu.Lock()
		e.closed = true
		e.closedMu.Unlock()
		close(e.gcStop)
		e.tracker.Clear()
		e.reasm.Clear()
		err = e.conn.Close()
	})
	return err
}

func (e *Engine) isClosed() bool {
	e.closedMu.RLock()
	defer e.closedMu.RUnlock()
	return e.closed
}

func (e *Engine) options() Options {
	e.optsMu.RLock()
	defer e.optsMu.RUnlock()
	return e.opts
}

// ---- Send path ----

// Send transmits v reliably to host:port. done fires exactly once: with the
// response body when the peer answers with a RES, with a nil value when a
// chunked send has every chunk acknowledged, or with an error when the
// deadline passes first. done may be nil for fire-and-forget sends.
func (e *Engine) Send(v any, host string, port int, done Done) {
	if done == nil {
		done = func(any, error) {}
	}
	if e.isClosed() {
		done(nil, ErrClosed)
		return
	}
	norm, canon, err := protocol.Canonicalize(v)
	if err != nil {
		done(nil, err)
		return
	}
	opts := e.options()

	body := canon
	comp := e.pipe.TryCompress(canon)
	if comp != nil {
		body = comp.Raw
	}

	if len(body) <= opts.MaxMessageSize {
		e.sendSingle(norm, comp, opts, host, port, done)
		return
	}
	e.sendChunked(body, comp, opts, host, port, done)
}

func (e *Engine) sendSingle(norm any, comp *compress.Result, opts Options, host string, port int, done Done) {
	id, err := e.ids.Generate()
	if err != nil {
		done(nil, err)
		return
	}
	env := protocol.Envelope{ID: id}
	if comp != nil {
		env.Flags = protocol.EncodeFlags(protocol.MsgReq, comp.Codec, true, false)
		env.Body = comp.Data
		env.OriginalSize = &comp.OriginalSize
		env.CompressedSize = &comp.CompressedSize
	} else {
		env.Flags = protocol.EncodeFlags(protocol.MsgReq, protocol.CodecNone, false, false)
		env.Body = norm
	}
	if opts.EnableChecksum {
		env.Checksum = protocol.ChecksumHex(env.Body)
	}
	b, err := env.Marshal()
	if err != nil {
		done(nil, err)
		return
	}
	e.tracker.Register(id, opts.RequestTimeout,
		func(v any) { done(v, nil) },
		func() {
			e.stats.timeouts.Add(1)
			done(nil, ErrRequestTimeout)
		})
	e.stats.sent.Add(1)
	e.sendWithRetry(b, id, host, port)
}

func (e *Engine) sendChunked(body []byte, comp *compress.Result, opts Options, host string, port int, done Done) {
	baseID, err := e.ids.Generate()
	if err != nil {
		done(nil, err)
		return
	}
	chunks := assemble.Chunks(body, opts.ChunkSize)
	total := len(chunks)

	var once sync.Once
	remaining := total
	var mu sync.Mutex
	chunkAcked := func() {
		mu.Lock()
		remaining--
		last := remaining == 0
		mu.Unlock()
		if last {
			once.Do(func() { done(nil, nil) })
		}
	}
	chunkFailed := func() {
		e.stats.timeouts.Add(1)
		once.Do(func() { done(nil, ErrRequestTimeout) })
	}

	codec := protocol.CodecNone
	if comp != nil {
		codec = comp.Codec
	}
	for i, chunk := range chunks {
		i := i
		id := protocol.ChunkID(baseID, i)
		ci, ct := i, total
		env := protocol.Envelope{
			ID:         id,
			Body:       chunk,
			ChunkIndex: &ci,
			ChunkTotal: &ct,
			// the codec bits ride on every chunk so arrival order cannot
			// hide them; the compressed bit and sizes mark chunk 0 only
			Flags: protocol.EncodeFlags(protocol.MsgReq, codec, comp != nil && i == 0, true),
		}
		if comp != nil && i == 0 {
			env.OriginalSize = &comp.OriginalSize
			env.CompressedSize = &comp.CompressedSize
		}
		if opts.EnableChecksum {
			env.Checksum = protocol.ChecksumHex(chunk)
		}
		b, err := env.Marshal()
		if err != nil {
			chunkFailed()
			return
		}
		e.tracker.Register(id, opts.RequestTimeout,
			func(any) { chunkAcked() },
			chunkFailed)
		e.stats.sent.Add(1)
		e.sendWithRetry(b, id, host, port)
	}
	zap.L().Debug("chunked send dispatched", zap.String("base_id", baseID), zap.Int("chunks", total))
}

// sendWithRetry emits the datagram and, while the request is neither
// acknowledged nor exhausted, arms the next retry. Retries reuse the same
// envelope bytes and id.
func (e *Engine) sendWithRetry(b []byte, id, host string, port int) {
	if err := e.conn.Send(b, host, port); err != nil {
		// a failed handoff still counts as an attempt; the retry timer
		// below covers it
		e.stats.sendErrors.Add(1)
		zap.L().Warn("datagram send failed", zap.String("id", id), zap.Error(err))
	}
	opts := e.options()
	known, acked := e.tracker.Acked(id)
	if !known || acked {
		return
	}
	if e.tracker.RetryCount(id) >= opts.MaxRetries {
		return
	}
	timer := e.sched.Once(opts.RetryInterval, func() {
		if e.isClosed() {
			return
		}
		known, acked := e.tracker.Acked(id)
		if !known || acked {
			return
		}
		if e.tracker.IncrementRetry(id) < 0 {
			return
		}
		e.stats.retries.Add(1)
		zap.L().Debug("retransmitting", zap.String("id", id))
		e.sendWithRetry(b, id, host, port)
	})
	e.tracker.SetRetryTimer(id, timer)
}

// Respond sends a RES mirroring the request id reqID back to host:port.
// Responses are not acknowledged or retried; an unanswered response shows
// up as a timeout on the requester.
func (e *Engine) Respond(reqID string, v any, host string, port int) error {
	if e.isClosed() {
		return ErrClosed
	}
	norm, canon, err := protocol.Canonicalize(v)
	if err != nil {
		return err
	}
	opts := e.options()
	env := protocol.Envelope{ID: reqID}
	if comp := e.pipe.TryCompress(canon); comp != nil {
		env.Flags = protocol.EncodeFlags(protocol.MsgRes, comp.Codec, true, false)
		env.Body = comp.Data
		env.OriginalSize = &comp.OriginalSize
		env.CompressedSize = &comp.CompressedSize
	} else {
		env.Flags = protocol.EncodeFlags(protocol.MsgRes, protocol.CodecNone, false, false)
		env.Body = norm
	}
	if opts.EnableChecksum {
		env.Checksum = protocol.ChecksumHex(env.Body)
	}
	b, err := env.Marshal()
	if err != nil {
		return err
	}
	return e.conn.Send(b, host, port)
}

// ---- Receive path ----

func (e *Engine) receive(b []byte, from transport.Remote) {
	if e.isClosed() {
		return
	}
	env, ok := protocol.Parse(b)
	if !ok {
		e.passthrough(b, from)
		return
	}
	switch env.Type() {
	case protocol.MsgReq:
		e.handleReq(&env, from)
	case protocol.MsgAck:
		e.handleAck(&env)
	case protocol.MsgRes:
		e.handleRes(&env)
	default:
		e.passthrough(b, from)
	}
}

func (e *Engine) passthrough(b []byte, from transport.Remote) {
	e.stats.passthrough.Add(1)
	e.cbMu.RLock()
	p := e.onPassthrough
	e.cbMu.RUnlock()
	if p != nil {
		p(b, from)
	}
}

func (e *Engine) handleReq(env *protocol.Envelope, from transport.Remote) {
	if !e.verifyChecksum(env) {
		return
	}

	// ACK before any application work, so the sender stops retrying even
	// when the handler is slow
	e.sendAck(env.ID, from)

	if env.Chunked() {
		e.handleChunk(env, from)
		return
	}

	body, ok := e.decodeBody(env)
	if !ok {
		return
	}
	e.deliver(Delivery{Body: body, Remote: from, RequestID: env.ID})
}

func (e *Engine) handleChunk(env *protocol.Envelope, from transport.Remote) {
	baseID, idx, ok := protocol.SplitChunkID(env.ID)
	if !ok {
		zap.L().Warn("chunked envelope with malformed id", zap.String("id", env.ID))
		return
	}
	if env.ChunkIndex != nil {
		idx = *env.ChunkIndex
	}
	if env.ChunkTotal == nil || *env.ChunkTotal <= 0 {
		zap.L().Warn("chunked envelope without total", zap.String("id", env.ID))
		return
	}
	data, ok := env.Body.(string)
	if !ok {
		zap.L().Warn("chunk body is not a string", zap.String("id", env.ID))
		return
	}

	e.reasm.Init(baseID, *env.ChunkTotal, from, env.Codec())
	if !e.reasm.Add(baseID, idx, data) {
		return
	}
	raw, codec, remote, ok := e.reasm.Assembled(baseID)
	if !ok {
		return
	}
	if codec != protocol.CodecNone {
		raw, ok = e.pipe.DecompressBytes(raw, codec)
		if !ok {
			e.stats.codecFailures.Add(1)
			return
		}
	}
	e.deliver(Delivery{Body: parseValue(raw), Remote: remote, RequestID: baseID})
}

// handleAck stops the retransmission of env.ID. An ACK is terminal for a
// chunk entry (the logical send completes when every chunk is acked); a
// single request stays registered until its RES or its deadline.
func (e *Engine) handleAck(env *protocol.Envelope) {
	if !e.tracker.MarkAcked(env.ID) {
		zap.L().Debug("ack for unknown request", zap.String("id", env.ID))
		return
	}
	e.stats.acked.Add(1)
	zap.L().Debug("request acknowledged", zap.String("id", env.ID))
	if _, _, isChunk := protocol.SplitChunkID(env.ID); isChunk {
		e.tracker.InvokeAndRemove(env.ID, nil)
	}
}

func (e *Engine) handleRes(env *protocol.Envelope) {
	if !e.verifyChecksum(env) {
		return
	}
	body, ok := e.decodeBody(env)
	if !ok {
		return
	}
	if !e.tracker.InvokeAndRemove(env.ID, body) {
		zap.L().Debug("response for unknown request", zap.String("id", env.ID))
	}
}

// verifyChecksum recomputes the body digest when checksums are on and the
// envelope carries one. A mismatch drops the datagram silently; the sender's
// retry covers the loss.
func (e *Engine) verifyChecksum(env *protocol.Envelope) bool {
	opts := e.options()
	if !opts.EnableChecksum || env.Checksum == "" {
		return true
	}
	if protocol.ChecksumHex(env.Body) != env.Checksum {
		e.stats.checksumDrops.Add(1)
		zap.L().Warn("checksum mismatch, dropping", zap.String("id", env.ID))
		return false
	}
	return true
}

// decodeBody expands a compressed single body; plain bodies pass through.
func (e *Engine) decodeBody(env *protocol.Envelope) (any, bool) {
	if env.Codec() == protocol.CodecNone && !env.Compressed() {
		return env.Body, true
	}
	data, ok := env.Body.(string)
	if !ok {
		zap.L().Warn("compressed body is not a string", zap.String("id", env.ID))
		return nil, false
	}
	raw, ok := e.pipe.TryDecompress(data, env.Codec())
	if !ok {
		e.stats.codecFailures.Add(1)
		return nil, false
	}
	return parseValue(raw), true
}

// parseValue decodes the canonical serialization back into a value; payloads
// that are not valid JSON are handed up as raw bytes.
func parseValue(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	return v
}

func (e *Engine) sendAck(id string, from transport.Remote) {
	ack := protocol.Envelope{ID: id, Flags: protocol.EncodeFlags(protocol.MsgAck, protocol.CodecNone, false, false)}
	b, err := ack.Marshal()
	if err != nil {
		return
	}
	if err := e.conn.Send(b, from.Host, from.Port); err != nil {
		zap.L().Warn("ack send failed", zap.String("id", id), zap.Error(err))
	}
}

func (e *Engine) deliver(d Delivery) {
	e.stats.delivered.Add(1)
	e.cbMu.RLock()
	h := e.onMessage
	e.cbMu.RUnlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("message handler panicked", zap.String("id", d.RequestID), zap.Any("panic", r))
		}
	}()
	h(d)
}

// ---- Garbage collection ----

func (e *Engine) gcLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.gcStop:
			return
		case now := <-t.C:
			opts := e.options()
			stale := e.reasm.CleanupStale(now)
			old := e.tracker.CleanupOld(opts.RequestCleanupAge)
			if stale > 0 || old > 0 {
				zap.L().Debug("cleanup pass", zap.Int("stale_assemblies", stale), zap.Int("old_requests", old))
			}
		}
	}
}
