package hikeit

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Content 10字节内容区，语义取决于报文类型
type Content [ContentLen]byte

// Hex 大写十六进制
func (c Content) Hex() string { return strings.ToUpper(hex.EncodeToString(c[:])) }

// DeviceID 4字节设备标识，首次收到非零值后固定
type DeviceID [DeviceIDLen]byte

// IsZero 是否尚未学习到设备ID
func (id DeviceID) IsZero() bool { return id == DeviceID{} }

func (id DeviceID) String() string { return strings.ToUpper(hex.EncodeToString(id[:])) }

// Frame HIKE IT 协议帧（构造后不可变）
// 格式：AA55(2) + seq(1) + type(1) + content(10) + deviceID(4) + checksum(1)
type Frame struct {
	Sequence uint8
	Type     MsgType
	Content  Content
	DeviceID DeviceID
	Checksum uint8
}

// FrameContext 下行帧所需的会话上下文：取号并自增的流水号与当前设备ID
type FrameContext interface {
	NextSequence() uint8
	DeviceID() DeviceID
}

// NewFrame 构造帧并计算校验和
func NewFrame(seq uint8, typ MsgType, content Content, id DeviceID) *Frame {
	f := &Frame{Sequence: seq, Type: typ, Content: content, DeviceID: id}
	f.Checksum = CalculateChecksum(f.body())
	return f
}

// Encode 编码为38位大写十六进制字符串
func Encode(seq uint8, typ MsgType, content Content, id DeviceID) string {
	return NewFrame(seq, typ, content, id).Hex()
}

func (f *Frame) body() []byte {
	b := make([]byte, 0, BodyLen)
	b = append(b, f.Sequence, byte(f.Type))
	b = append(b, f.Content[:]...)
	b = append(b, f.DeviceID[:]...)
	return b
}

// Bytes 完整帧字节（含头部与校验和），即写入特征值的内容
func (f *Frame) Bytes() []byte {
	b := make([]byte, 0, 2+FrameLen)
	b = append(b, headerBytes[:]...)
	b = append(b, f.body()...)
	return append(b, f.Checksum)
}

// Hex 完整帧十六进制
func (f *Frame) Hex() string { return strings.ToUpper(hex.EncodeToString(f.Bytes())) }

// Valid 校验和是否与 body 一致
func (f *Frame) Valid() bool { return VerifyChecksum(f) == nil }

func (f *Frame) String() string {
	return fmt.Sprintf("type=%02X(%s) seq=%d id=%s content=%s sum=%02X",
		uint8(f.Type), f.Type, f.Sequence, f.DeviceID, f.Content.Hex(), f.Checksum)
}

// Decode 解析38位十六进制帧，不校验 checksum（与设备参考实现一致）
func Decode(s string) (*Frame, error) {
	if len(s) < len(HeaderHex) || !strings.EqualFold(s[:len(HeaderHex)], HeaderHex) {
		return nil, ErrBadHeader
	}
	if len(s) != FrameHexLen {
		return nil, fmt.Errorf("%w: got %d chars", ErrBadLength, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHex, err)
	}
	return DecodeBytes(raw)
}

// DecodeBytes 解析原始字节帧（19字节体 + 2字节头）
func DecodeBytes(raw []byte) (*Frame, error) {
	if len(raw) < 2 || raw[0] != headerBytes[0] || raw[1] != headerBytes[1] {
		return nil, ErrBadHeader
	}
	if len(raw) != 2+FrameLen {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadLength, len(raw))
	}
	return parse(raw), nil
}

func parse(raw []byte) *Frame {
	f := &Frame{Sequence: raw[2], Type: MsgType(raw[3])}
	copy(f.Content[:], raw[4:4+ContentLen])
	copy(f.DeviceID[:], raw[4+ContentLen:4+ContentLen+DeviceIDLen])
	f.Checksum = raw[len(raw)-1]
	return f
}

// Decoder 可配置严格度的解码器：Strict 时拒绝校验和不一致的帧
type Decoder struct {
	Strict bool
}

// Decode 解析并按严格度校验。非严格模式下校验和不一致仍返回帧与 ErrChecksumMismatch 以便记录
func (d Decoder) Decode(s string) (*Frame, error) {
	f, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if err := VerifyChecksum(f); err != nil {
		if d.Strict {
			return nil, err
		}
		return f, err
	}
	return f, nil
}

// SplitNotification 拆分一次通知的载荷：38字符单帧，76字符双帧，其余为帧格式错误
// 不做跨通知的半包重组，设备不会把一帧拆到多个通知里
func SplitNotification(raw string) ([]string, error) {
	switch len(raw) {
	case FrameHexLen:
		return []string{raw}, nil
	case FrameHexLen * 2:
		return []string{raw[:FrameHexLen], raw[FrameHexLen:]}, nil
	default:
		return nil, fmt.Errorf("%w: notification of %d chars", ErrBadLength, len(raw))
	}
}
