package hikeit

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming 帧格式错误（头部/长度/十六进制），丢弃不重试
	ErrFraming = errors.New("framing error")

	ErrBadHeader = fmt.Errorf("%w: bad header", ErrFraming)
	ErrBadLength = fmt.Errorf("%w: bad length", ErrFraming)
	ErrBadHex    = fmt.Errorf("%w: bad hex", ErrFraming)

	// ErrChecksumMismatch 可解析但校验和不一致，由调用方决定是否丢弃
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMissingStatus 尚未收到状态帧，无法做读-改-写
	ErrMissingStatus = errors.New("no status received yet")

	// ErrInvalidPin PIN 必须为1-4位十进制数字
	ErrInvalidPin = errors.New("pin must be 1-4 decimal digits")

	// ErrNotStatus 非 0x02 状态帧
	ErrNotStatus = errors.New("not a status frame")
)
