package wire

import "errors"

var (
	ErrBufferOverflow  = errors.New("bit buffer exceeds maximum packet size")
	ErrBufferUnderflow = errors.New("read past end of bit buffer")
	ErrShortArray      = errors.New("destination array too short")
	ErrPacketTooLarge  = errors.New("packet exceeds maximum packet size")
	ErrMalformedVarint = errors.New("malformed varint")
	ErrStringTooLong   = errors.New("string exceeds maximum length")
)
