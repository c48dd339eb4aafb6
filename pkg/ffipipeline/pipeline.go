// Package ffipipeline implements the worker-thread request pipeline
// that sits behind the module's foreign-function boundary: a single
// dedicated worker per context, a lock-guarded submission slot, and a
// two-signal handshake between the submitting caller and the worker.
//
// cmd/storageffi is the cgo-exported shim built on this package: it
// allocates one Pipeline and Dispatcher per storage context and
// translates each exported C function into a NewRequest/Submit call.
package ffipipeline

import (
	"context"
	"sync"

	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Kind groups requests the way the foreign envelope's kind field does.
type Kind int

const (
	KindLifecycle Kind = iota
	KindInfo
	KindDebug
	KindP2P
	KindUpload
	KindDownload
	KindStorage
)

// Code is the completion status passed to a Callback, matching the
// foreign ABI's RET_* constants.
type Code int

const (
	CodeOK Code = iota
	CodeErr
	CodeMissingCallback
	CodeProgress
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeErr:
		return "ERR"
	case CodeMissingCallback:
		return "MISSING_CALLBACK"
	case CodeProgress:
		return "PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// Callback receives a request's outcome. PROGRESS may fire multiple
// times before a terminal OK/ERR. Implementations must not block: the
// worker thread calls Callback directly, and a blocking callback stalls
// every request behind it.
type Callback func(code Code, msg []byte, userData any)

// Request is the envelope a caller submits: (kind, op, payload,
// callback, userData). Op names the specific operation within Kind
// (e.g. "upload_chunk"); Payload carries its arguments as a concrete
// struct from this package.
type Request struct {
	Kind     Kind
	Op       Op
	Payload  any
	Callback Callback
	UserData any
}

// NewRequest builds a Request with Kind derived from op, so a caller
// translating one exported C function never has to track the
// op-to-kind mapping itself.
func NewRequest(op Op, payload any, callback Callback, userData any) *Request {
	return &Request{Kind: opKinds[op], Op: op, Payload: payload, Callback: callback, UserData: userData}
}

func (r *Request) reply(code Code, msg []byte) {
	if r.Callback == nil {
		return
	}
	r.Callback(code, msg, r.UserData)
}

func (r *Request) fail(err error) {
	r.reply(CodeErr, []byte(err.Error()))
}

// Handler processes one request, invoking its Callback (possibly
// several times for progress) before returning.
type Handler func(ctx context.Context, req *Request)

// Pipeline runs one worker goroutine draining a single-slot request
// channel, standing in for the dedicated worker thread of the foreign
// ABI's model.
type Pipeline struct {
	submitMu sync.Mutex // serializes concurrent Submit calls, like the foreign lock

	requests    chan *Request
	reqReceived chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup

	handler Handler
}

// New starts a Pipeline whose worker dispatches every accepted request
// to handler.
func New(handler Handler) *Pipeline {
	p := &Pipeline{
		requests:    make(chan *Request),
		reqReceived: make(chan struct{}),
		done:        make(chan struct{}),
		handler:     handler,
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *Pipeline) loop() {
	defer p.wg.Done()
	for {
		select {
		case req := <-p.requests:
			// Acknowledge receipt before processing so submitters are
			// unblocked as soon as the request is safely owned by the
			// worker; the actual handling runs concurrently.
			p.reqReceived <- struct{}{}
			go p.handler(context.Background(), req)
		case <-p.done:
			return
		}
	}
}

// Submit enqueues req, following the lock -> enqueue -> signal ->
// await-ack -> unlock sequence a foreign binding uses. It returns once
// the worker has taken ownership of req, not once req has finished
// processing: the outcome arrives later via req.Callback.
func (p *Pipeline) Submit(ctx context.Context, req *Request) error {
	if req.Callback == nil {
		return storageerr.Newf(storageerr.InvalidArgument, "ffipipeline.Submit", "callback is required")
	}

	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	select {
	case p.requests <- req:
	case <-p.done:
		return storageerr.Newf(storageerr.DispatchFailed, "ffipipeline.Submit", "pipeline is shut down")
	case <-ctx.Done():
		return storageerr.Wrap(storageerr.DispatchFailed, "ffipipeline.Submit", ctx.Err())
	}

	select {
	case <-p.reqReceived:
	case <-ctx.Done():
		return storageerr.Wrap(storageerr.DispatchFailed, "ffipipeline.Submit", ctx.Err())
	}
	return nil
}

// Close stops the worker loop and waits for it to exit. In-flight
// requests dispatched via go p.handler are not waited on: the foreign
// contract only guarantees the worker thread itself is joined.
func (p *Pipeline) Close() {
	close(p.done)
	p.wg.Wait()
}
