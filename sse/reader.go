package sse

import (
	"context"
	"errors"
	"io"
)

// DoneSentinel is the data of the frame that closes a chat reply stream.
const DoneSentinel = "[DONE]"

// ErrStop can be returned by a Read callback to end the read without error.
var ErrStop = errors.New("sse: stop")

// Read drives a Decoder over r, calling fn for every complete frame until
// EOF, a read error, ctx cancellation, or fn returning an error. ErrStop
// from fn ends the read cleanly.
func Read(ctx context.Context, r io.Reader, fn func(Frame) error) error {
	var dec Decoder
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			for _, f := range dec.Write(buf[:n]) {
				if ferr := fn(f); ferr != nil {
					if errors.Is(ferr, ErrStop) {
						return nil
					}
					return ferr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			dec.Flush()
			return nil
		}
		if err != nil {
			return err
		}
	}
}
