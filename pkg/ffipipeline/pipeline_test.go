package ffipipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitDeliversRequestToHandler(t *testing.T) {
	received := make(chan *Request, 1)
	p := New(func(ctx context.Context, req *Request) {
		received <- req
		req.reply(CodeOK, []byte("done"))
	})
	defer p.Close()

	results := make(chan Code, 1)
	req := &Request{
		Op: "test_op",
		Callback: func(code Code, msg []byte, userData any) {
			results <- code
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Submit(ctx, req))

	select {
	case got := <-received:
		require.Equal(t, req, got)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	select {
	case code := <-results:
		require.Equal(t, CodeOK, code)
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestSubmitRejectsMissingCallback(t *testing.T) {
	p := New(func(ctx context.Context, req *Request) {})
	defer p.Close()

	err := p.Submit(context.Background(), &Request{Op: "test_op"})
	require.Error(t, err)
}

func TestSubmitAfterCloseFails(t *testing.T) {
	p := New(func(ctx context.Context, req *Request) {})
	p.Close()

	err := p.Submit(context.Background(), &Request{
		Op:       "test_op",
		Callback: func(Code, []byte, any) {},
	})
	require.Error(t, err)
}

func TestProgressThenTerminalCallback(t *testing.T) {
	p := New(func(ctx context.Context, req *Request) {
		req.reply(CodeProgress, []byte("1/2"))
		req.reply(CodeProgress, []byte("2/2"))
		req.reply(CodeOK, []byte("finished"))
	})
	defer p.Close()

	var codes []Code
	done := make(chan struct{})
	req := &Request{
		Op: "test_op",
		Callback: func(code Code, msg []byte, userData any) {
			codes = append(codes, code)
			if code != CodeProgress {
				close(done)
			}
		},
	}

	require.NoError(t, p.Submit(context.Background(), req))
	<-done
	require.Equal(t, []Code{CodeProgress, CodeProgress, CodeOK}, codes)
}
