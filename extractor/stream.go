package extractor

import (
	"bufio"
	"context"
	"os"

	"github.com/movielogd/movielogd-importer/apperrors"
)

// dump lines can carry whole nested video/company arrays
const maxLineBytes = 16 * 1024 * 1024

// StreamLines opens the dump and feeds raw lines through a bounded channel
// so disk reads overlap with parsing. Line order is preserved; the channel
// is closed at EOF. Read errors after open arrive on the error channel.
func StreamLines(ctx context.Context, path string, buffer int) (<-chan []byte, <-chan error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrClassFileSystem, "open dump", err).For(path)
	}
	if buffer <= 0 {
		buffer = 1024
	}
	lines := make(chan []byte, buffer)
	errc := make(chan error, 1)
	go func() {
		defer f.Close()
		defer close(lines)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			// the scanner reuses its buffer between lines
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errc <- apperrors.Wrap(apperrors.ErrClassFileSystem, "read dump", err).For(path)
			return
		}
		errc <- nil
	}()
	return lines, errc, nil
}
