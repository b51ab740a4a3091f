package quic

import (
	"errors"

	"github.com/quic-go/quic-go"
)

var (
	ErrBadPreamble  = errors.New("quic: bad connection preamble")
	ErrFrameTooLong = errors.New("quic: frame exceeds maximum size")
)

// Application error codes used when closing a connection.
const (
	codeNormal     quic.ApplicationErrorCode = 0x0
	codeServerFull quic.ApplicationErrorCode = 0xa
	codeProtocol   quic.ApplicationErrorCode = 0xb
)
