package libav

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/muxarr/internal/media"
)

// wrapError translates a libav error into the media contract: end of file
// becomes io.EOF, EAGAIN becomes media.ErrAgain and every other libav error
// becomes a media.CodeError carrying the AVERROR code.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, astiav.ErrEof) {
		return io.EOF
	}
	if errors.Is(err, astiav.ErrEagain) {
		return media.ErrAgain
	}
	var averr astiav.Error
	if errors.As(err, &averr) {
		return &media.CodeError{Op: op, Num: int(averr), Text: averr.Error()}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notFound is the lookup failure for a codec libav does not have.
func notFound(op, name string, code astiav.Error) error {
	return &media.CodeError{Op: op, Num: int(code), Text: fmt.Sprintf("%s: %s", name, code.Error())}
}
