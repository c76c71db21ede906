package protocol

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/12101111/nettest/internal/payload"
)

// downloadPrefix opens every DOWNLOAD body and counts toward its size.
const downloadPrefix = "DOWNLOAD "

// DownloadOverhead is the number of framing bytes in a full DOWNLOAD body.
const DownloadOverhead = len(downloadPrefix) + len(LineEnd)

// WriteDownload streams exactly n bytes of DOWNLOAD body to w:
//
//	n <= 1       "\r\n" cut to n bytes
//	2 <= n <= 11 "DOWNLOAD " cut to n-2 bytes, then "\r\n"
//	n > 11       "DOWNLOAD ", n-11 pool bytes, "\r\n"
//
// Pool bytes are taken as random windows of at most payload.MaxWindow.
// It returns the number of bytes written.
func WriteDownload(w io.Writer, n int64, pool *payload.Pool, rng *rand.Rand) (int64, error) {
	var written int64
	write := func(b []byte) error {
		m, err := w.Write(b)
		written += int64(m)
		if err != nil {
			return err
		}
		if m != len(b) {
			return io.ErrShortWrite
		}
		return nil
	}

	switch {
	case n <= 0:
		return 0, nil
	case n == 1:
		return written, write([]byte(LineEnd[:1]))
	case n <= int64(DownloadOverhead):
		if err := write([]byte(downloadPrefix[:n-2])); err != nil {
			return written, err
		}
		return written, write([]byte(LineEnd))
	}

	if err := write([]byte(downloadPrefix)); err != nil {
		return written, err
	}
	remaining := n - int64(DownloadOverhead)
	for remaining > 0 {
		chunk := int(min(remaining, payload.MaxWindow))
		if err := write(pool.Window(rng, chunk)); err != nil {
			return written, err
		}
		remaining -= int64(chunk)
	}
	if err := write([]byte(LineEnd)); err != nil {
		return written, err
	}

	if written != n {
		return written, fmt.Errorf("%w: wrote %d of %d download bytes", ErrSizeMismatch, written, n)
	}
	return written, nil
}

// UploadBudget is the number of body bytes the server reads after an UPLOAD
// command line of lineLen bytes that declared size bytes in total.
func UploadBudget(size int64, lineLen int) int64 {
	return max(size-int64(lineLen), 0)
}

// UploadBody returns the filler length and terminator a client sends after
// UploadRequest(size) so that command line, filler and terminator add up to
// size bytes.
func UploadBody(size int64) (filler int64, terminator string) {
	body := UploadBudget(size, len(UploadRequest(size)))
	t := min(body, int64(len(LineEnd)))
	return body - t, LineEnd[len(LineEnd)-int(t):]
}
