package hikeit

// BLE GATT 服务与特征值（128位 SIG 基础 UUID）
const (
	ServiceUUID        = "0000ffe0-0000-1000-8000-00805f9b34fb"
	CharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"

	// ScanPrefix 广播名前缀（不区分大小写）
	ScanPrefix = "HIKE"
)

// 帧布局
const (
	HeaderHex   = "AA55"
	ContentLen  = 10
	DeviceIDLen = 4

	// BodyLen 流水号(1) + 类型(1) + 内容(10) + 设备ID(4)，即校验和覆盖范围
	BodyLen = 1 + 1 + ContentLen + DeviceIDLen
	// FrameLen 不含2字节头部的帧长度（body + checksum）
	FrameLen = BodyLen + 1
	// FrameHexLen 含头部的完整帧十六进制长度
	FrameHexLen = len(HeaderHex) + (BodyLen+1)*2
)

var headerBytes = [2]byte{0xAA, 0x55}

// MsgType 报文类型
type MsgType uint8

const (
	TypeStudyMode MsgType = 0x01
	TypeStatus    MsgType = 0x02 // 双向
	TypeLock      MsgType = 0x05
	TypeUnlock    MsgType = 0x06
	TypeScreen    MsgType = 0x08
	TypeVerify    MsgType = 0x09
)

func (t MsgType) String() string {
	switch t {
	case TypeStudyMode:
		return "study"
	case TypeStatus:
		return "status"
	case TypeLock:
		return "lock"
	case TypeUnlock:
		return "unlock"
	case TypeScreen:
		return "screen"
	case TypeVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// 命令子码（内容字节0）
const (
	verifyConnect    byte = 0x03
	verifyDisconnect byte = 0x04
	studyModeCode    byte = 0x16
	screenCode       byte = 0x24
)
