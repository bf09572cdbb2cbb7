package mux_test

import (
	"errors"
	"testing"

	rterrors "github.com/wippyai/iota-runtime/errors"
	"github.com/wippyai/iota-runtime/frame"
	"github.com/wippyai/iota-runtime/mux"
)

const testMaxFrameLen = 4096

// pipe forwards frames to the peer endpoint through a real encode/decode
// cycle, so loopback tests exercise the wire codec too.
type pipe struct {
	peer *mux.Endpoint
}

func (p *pipe) SendFrame(f frame.Frame) error {
	encoded, err := frame.Encode(f, testMaxFrameLen)
	if err != nil {
		return err
	}
	decoded, _, err := frame.Decode(encoded, testMaxFrameLen)
	if err != nil {
		return err
	}
	return p.peer.HandleFrame(decoded)
}

// connect builds a host endpoint wired to a guest endpoint.
func connect() (host, guest *mux.Endpoint) {
	hostPipe := &pipe{}
	guestPipe := &pipe{}
	host = mux.NewEndpoint(mux.RoleHost, hostPipe)
	guest = mux.NewEndpoint(mux.RoleGuest, guestPipe)
	hostPipe.peer = guest
	guestPipe.peer = host
	return host, guest
}

func collect(events *[]mux.Event) mux.Handler {
	return func(ev mux.Event) {
		*events = append(*events, ev)
	}
}

func TestRequestResponse(t *testing.T) {
	host, guest := connect()

	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		if req.Operation != 1 {
			t.Errorf("operation = %d", req.Operation)
		}
		s.Send(append([]byte("echo:"), req.Data...), true)
	}

	var events []mux.Event
	id, err := host.OpenRequestResponse(1, []byte("hi"), collect(&events))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if id%2 != 1 {
		t.Errorf("host stream id %d not odd", id)
	}

	if len(events) != 2 || events[0].Kind != mux.EventPayload || events[1].Kind != mux.EventComplete {
		t.Fatalf("events = %+v", events)
	}
	if string(events[0].Data) != "echo:hi" {
		t.Errorf("payload = %q", events[0].Data)
	}

	state, ok := host.StreamState(id)
	if !ok || state != mux.StateComplete {
		t.Errorf("state = %v, %v", state, ok)
	}
}

func TestRequestStreamBudget(t *testing.T) {
	host, guest := connect()

	elements := []string{"a", "b", "c"}
	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		for _, e := range elements {
			s.Send([]byte(e), false)
		}
		s.Complete()
	}

	var events []mux.Event
	id, err := host.OpenStream(2, nil, 2, collect(&events))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Budget was 2: two elements delivered, the third and the completion
	// stay queued on the responder.
	if len(events) != 2 {
		t.Fatalf("events before grant = %+v", events)
	}
	if state, _ := host.StreamState(id); state != mux.StateActive {
		t.Errorf("state = %v", state)
	}

	if err := host.RequestMore(id, 1); err != nil {
		t.Fatalf("request more: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("events after grant = %+v", events)
	}
	got := []string{string(events[0].Data), string(events[1].Data), string(events[2].Data)}
	for i, want := range elements {
		if got[i] != want {
			t.Errorf("element %d = %q, want %q", i, got[i], want)
		}
	}
	if events[3].Kind != mux.EventComplete {
		t.Errorf("final event = %+v", events[3])
	}
	if state, _ := host.StreamState(id); state != mux.StateComplete {
		t.Errorf("state = %v", state)
	}
}

func TestChannelBothDirections(t *testing.T) {
	host, guest := connect()

	var inbound []string
	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		s.OnEvent(func(ev mux.Event) {
			switch ev.Kind {
			case mux.EventPayload:
				inbound = append(inbound, string(ev.Data))
				// Reverse each element back to the requester.
				b := []byte(string(ev.Data))
				for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
					b[i], b[j] = b[j], b[i]
				}
				s.Send(b, false)
			case mux.EventComplete:
				s.Complete()
			}
		})
		// Let the requester send freely.
		s.RequestMore(16)
	}

	var events []mux.Event
	id, err := host.OpenChannel(3, 16, collect(&events))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for _, e := range []string{"abc", "de"} {
		if err := host.SendPayload(id, []byte(e), false); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := host.CompleteOutbound(id); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if len(inbound) != 2 || inbound[0] != "abc" || inbound[1] != "de" {
		t.Errorf("guest saw %v", inbound)
	}
	var got []string
	for _, ev := range events {
		if ev.Kind == mux.EventPayload {
			got = append(got, string(ev.Data))
		}
	}
	if len(got) != 2 || got[0] != "cba" || got[1] != "ed" {
		t.Errorf("host received %v", got)
	}
	if state, _ := host.StreamState(id); state != mux.StateComplete {
		t.Errorf("state = %v", state)
	}
}

func TestChannelQueuesWithoutBudget(t *testing.T) {
	host, guest := connect()

	var inbound []string
	var server *mux.ServerStream
	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		server = s
		s.OnEvent(func(ev mux.Event) {
			if ev.Kind == mux.EventPayload {
				inbound = append(inbound, string(ev.Data))
			}
		})
	}

	id, err := host.OpenChannel(3, 0, func(mux.Event) {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// No budget granted yet: elements queue on the requester side.
	host.SendPayload(id, []byte("x"), false)
	host.SendPayload(id, []byte("y"), false)
	if len(inbound) != 0 {
		t.Fatalf("elements leaked without budget: %v", inbound)
	}

	server.RequestMore(2)
	if len(inbound) != 2 {
		t.Fatalf("inbound after grant = %v", inbound)
	}
}

func TestFireAndForget(t *testing.T) {
	host, guest := connect()

	var got []string
	guest.OnFireAndForget = func(op uint32, data []byte) {
		got = append(got, string(data))
	}

	if err := host.FireAndForget(5, []byte("noreply")); err != nil {
		t.Fatalf("fnf: %v", err)
	}
	if len(got) != 1 || got[0] != "noreply" {
		t.Errorf("got %v", got)
	}
}

func TestStreamError(t *testing.T) {
	host, guest := connect()

	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		s.Error(frame.ErrCodeApplication, "kaput")
	}

	var errored, sibling []mux.Event
	id, err := host.OpenRequestResponse(1, nil, collect(&errored))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(errored) != 1 || errored[0].Kind != mux.EventError || errored[0].ErrorMessage != "kaput" {
		t.Fatalf("events = %+v", errored)
	}
	if state, _ := host.StreamState(id); state != mux.StateErrored {
		t.Errorf("state = %v", state)
	}

	// A stream-level error never poisons the endpoint: siblings still work.
	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		s.Send([]byte("ok"), true)
	}
	if _, err := host.OpenRequestResponse(1, nil, collect(&sibling)); err != nil {
		t.Fatalf("sibling open: %v", err)
	}
	if len(sibling) != 2 || string(sibling[0].Data) != "ok" {
		t.Errorf("sibling events = %+v", sibling)
	}
	if host.Failed() != nil {
		t.Errorf("endpoint failed: %v", host.Failed())
	}
}

func TestCancelIdempotent(t *testing.T) {
	host, guest := connect()

	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		// Never answers.
	}

	id, err := host.OpenStream(2, nil, 4, func(mux.Event) {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := host.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if state, _ := host.StreamState(id); state != mux.StateCancelled {
		t.Errorf("state = %v", state)
	}

	// Cancelling again, or cancelling an unknown id, is a no-op.
	if err := host.Cancel(id); err != nil {
		t.Errorf("second cancel: %v", err)
	}
	if err := host.Cancel(9999); err != nil {
		t.Errorf("cancel unknown: %v", err)
	}

	// Cancelling a completed stream is equally silent.
	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		s.Send([]byte("done"), true)
	}
	done, err := host.OpenRequestResponse(1, nil, func(mux.Event) {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := host.Cancel(done); err != nil {
		t.Errorf("cancel complete: %v", err)
	}
	if state, _ := host.StreamState(done); state != mux.StateComplete {
		t.Errorf("cancel of complete stream changed state to %v", state)
	}
}

func TestIDNonReuse(t *testing.T) {
	host, guest := connect()

	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		s.Send([]byte("done"), true)
	}
	id, err := host.OpenRequestResponse(1, nil, func(mux.Event) {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if state, _ := host.StreamState(id); state != mux.StateComplete {
		t.Fatalf("state = %v", state)
	}

	// A payload frame for the terminal-but-unreleased id is a protocol
	// violation.
	err = host.HandleFrame(frame.Payload(id, []byte("late"), false))
	if err == nil {
		t.Fatal("payload on terminal id accepted")
	}
	if !rterrors.Fatal(err) {
		t.Errorf("expected transport-fatal, got %v", err)
	}
	if host.Failed() == nil {
		t.Error("endpoint should be failed")
	}
}

func TestRequestIDCollision(t *testing.T) {
	host, _ := connect()

	host.OnRequest = func(s *mux.ServerStream, req mux.Request) {}

	// Two REQUEST frames with the same guest-parity id on the host side.
	req := frame.Request(frame.TypeRequestStream, 2, 1, 1, nil)
	if err := host.HandleFrame(req); err != nil {
		t.Fatalf("first request: %v", err)
	}
	err := host.HandleFrame(req)
	if err == nil {
		t.Fatal("reused id accepted")
	}
	if !errors.Is(err, &rterrors.Error{Phase: rterrors.PhaseMux, Kind: rterrors.KindIDCollision}) {
		t.Errorf("wrong error: %v", err)
	}
}

func TestReleaseAndReuse(t *testing.T) {
	host, guest := connect()

	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		s.Send(nil, true)
	}

	id, err := host.OpenRequestResponse(1, nil, func(mux.Event) {})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Releasing a live stream is refused.
	live, err := host.OpenChannel(3, 1, func(mux.Event) {})
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	if err := host.Release(live); err == nil {
		t.Error("release of live stream accepted")
	}

	if err := host.Release(id); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := host.StreamState(id); ok {
		t.Error("released id still tracked")
	}
}

func TestFatalTerminatesLiveStreams(t *testing.T) {
	host, guest := connect()

	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {}

	var events []mux.Event
	id, err := host.OpenStream(2, nil, 4, collect(&events))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	boom := rterrors.Malformed(rterrors.PhaseFrame, "boom")
	host.Fail(boom)

	if len(events) != 1 || events[0].Kind != mux.EventError {
		t.Fatalf("events = %+v", events)
	}
	if state, _ := host.StreamState(id); state != mux.StateErrored {
		t.Errorf("state = %v", state)
	}

	// Everything after the failure reports the same error.
	if _, err := host.OpenRequestResponse(1, nil, nil); !errors.Is(err, boom) {
		t.Errorf("open after failure: %v", err)
	}
	if err := host.HandleFrame(frame.Cancel(id)); !errors.Is(err, boom) {
		t.Errorf("handle after failure: %v", err)
	}
}

func TestFragmentedPayloadRejected(t *testing.T) {
	host, guest := connect()

	guest.OnRequest = func(s *mux.ServerStream, req mux.Request) {}

	var events []mux.Event
	id, err := host.OpenStream(2, nil, 4, collect(&events))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	f := frame.Payload(id, []byte("part"), false)
	f.Flags |= frame.FlagFollows
	if err := host.HandleFrame(f); err == nil {
		t.Fatal("fragmented payload accepted")
	}
	if host.Failed() == nil {
		t.Fatal("endpoint not failed")
	}
	if len(events) != 1 || events[0].Kind != mux.EventError {
		t.Fatalf("events = %+v", events)
	}
	if state, _ := host.StreamState(id); state != mux.StateErrored {
		t.Errorf("state = %v", state)
	}
}

func TestFragmentedRequestRejected(t *testing.T) {
	host, _ := connect()

	f := frame.Request(frame.TypeRequestResponse, 2, 1, 0, []byte("ping"))
	f.Flags |= frame.FlagFollows
	if err := host.HandleFrame(f); !rterrors.IsKind(err, rterrors.KindUnsupported) {
		t.Fatalf("err = %v, want unsupported", err)
	}
	if host.Failed() == nil {
		t.Fatal("endpoint not failed")
	}
}

func TestGuestInitiatedParity(t *testing.T) {
	host, guest := connect()

	host.OnRequest = func(s *mux.ServerStream, req mux.Request) {
		s.Send([]byte("host answer"), true)
	}

	var events []mux.Event
	id, err := guest.OpenRequestResponse(7, nil, collect(&events))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if id%2 != 0 {
		t.Errorf("guest stream id %d not even", id)
	}
	if len(events) != 2 || string(events[0].Data) != "host answer" {
		t.Errorf("events = %+v", events)
	}

	// A request with local-parity id is a protocol violation.
	err = host.HandleFrame(frame.Request(frame.TypeRequestResponse, 11, 0, 0, nil))
	if err == nil {
		t.Error("local-parity request accepted")
	}
}
