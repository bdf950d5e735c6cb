package workflow

import (
	"context"
	"io"

	"github.com/routecodex/routecodex/internal/pipeline"
)

// translateStream reads an upstream SSE body in the `from` dialect and
// returns a new io.ReadCloser emitting equivalent SSE events in the `to`
// dialect. If from == to, body is returned unchanged (pure passthrough,
// the common case). Otherwise a goroutine drives the conversion through an
// io.Pipe so the caller can start forwarding bytes to the client as soon as
// the first translated event is available, rather than buffering the whole
// response.
func translateStream(ctx context.Context, body io.ReadCloser, from, to pipeline.Protocol) io.ReadCloser {
	if from == to {
		return body
	}

	pr, pw := io.Pipe()
	go func() {
		defer body.Close()
		reader := NewReader(body)
		enc := newEncoder(to)
		opened := false
		finish := ""

		emit := func(events []*Event) bool {
			for _, evt := range events {
				if err := WriteEventTo(pw, evt); err != nil {
					pw.CloseWithError(err)
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			default:
			}

			evt, err := reader.Next()
			if err != nil {
				if err == io.EOF {
					break
				}
				pw.CloseWithError(err)
				return
			}
			if evt.Data == "[DONE]" {
				break
			}

			for _, d := range decodeDeltas(from, evt.Event, evt.Data) {
				if d.done {
					continue
				}
				if !opened && (d.model != "" || d.textDelta != "" || d.toolCallID != "") {
					if !emit(enc.Open(d.model)) {
						return
					}
					opened = true
				}
				if d.finishReason != "" {
					finish = d.finishReason
				}
				if !emit(enc.Encode(d)) {
					return
				}
			}
			if err == io.EOF {
				break
			}
		}

		if !opened {
			emit(enc.Open(""))
		}
		emit(enc.Close(finish))
		pw.Close()
	}()
	return pr
}

// collectStream fully drains an upstream SSE body (in dialect `from`) into
// a canonical, non-streaming result. Used when the client asked for a
// plain JSON response but the upstream only offers SSE.
func collectStream(ctx context.Context, body io.ReadCloser, from pipeline.Protocol) (*canonicalAccumulator, error) {
	defer body.Close()
	reader := NewReader(body)
	acc := newAccumulator()

	for {
		select {
		case <-ctx.Done():
			return acc, ctx.Err()
		default:
		}

		evt, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				return acc, nil
			}
			return acc, err
		}
		if evt.Data == "[DONE]" {
			return acc, nil
		}
		for _, d := range decodeDeltas(from, evt.Event, evt.Data) {
			acc.apply(d)
		}
	}
}

// wrapJSONAsStream replays a fully-materialized canonical result as a
// single SSE burst in dialect `to`. Used when the client asked for SSE but
// the upstream returned a complete JSON body (e.g. a provider that never
// streams).
func wrapJSONAsStream(acc *canonicalAccumulator, to pipeline.Protocol) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		enc := newEncoder(to)
		for _, evt := range enc.Open(acc.model) {
			WriteEventTo(pw, evt)
		}
		if acc.text != "" {
			for _, evt := range enc.Encode(delta{textDelta: acc.text}) {
				WriteEventTo(pw, evt)
			}
		}
		for i, tc := range acc.toolCalls {
			for _, evt := range enc.Encode(delta{toolCallIndex: i, toolCallID: tc.ID, toolCallName: tc.Function.Name}) {
				WriteEventTo(pw, evt)
			}
			for _, evt := range enc.Encode(delta{toolCallIndex: i, argsDelta: tc.Function.Arguments}) {
				WriteEventTo(pw, evt)
			}
		}
		for _, evt := range enc.Close(acc.finishReason) {
			WriteEventTo(pw, evt)
		}
		pw.Close()
	}()
	return pr
}
