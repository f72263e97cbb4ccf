package hikeit

import (
	"fmt"
	"strings"
)

// Notice 设备提示码，按 C1 > C2 > C3 优先级互斥
type Notice uint8

const (
	NoticeNone Notice = iota
	NoticeC1
	NoticeC2
	NoticeC3
)

func (n Notice) String() string {
	switch n {
	case NoticeC1:
		return "C1"
	case NoticeC2:
		return "C2"
	case NoticeC3:
		return "C3"
	default:
		return ""
	}
}

// MarshalText JSON 中以 "C1" 等名称出现
func (n Notice) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

// StudyState 学习模式状态
type StudyState uint8

const (
	StudyOff    StudyState = 0
	StudyActive StudyState = 1
	StudyOther  StudyState = 3
)

func (s StudyState) String() string {
	switch s {
	case StudyOff:
		return "off"
	case StudyActive:
		return "active"
	default:
		return "other"
	}
}

func (s StudyState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StatusSnapshot 0x02 状态帧解码结果，每次整体替换，不做合并
type StatusSnapshot struct {
	Mode        SpeedMode  `json:"mode"`
	StepEconomy uint8      `json:"step_economy"`
	StepCruise  uint8      `json:"step_cruise"`
	StepSport   uint8      `json:"step_sport"`
	StepHike    uint8      `json:"step_hike"`
	AT          bool       `json:"at"`
	SupportsSL  bool       `json:"supports_sl"`
	DeepCX      uint8      `json:"deep_cx"`
	DeepSC      uint8      `json:"deep_sc"`
	VersionRaw  uint8      `json:"version_raw"`
	Locked      bool       `json:"locked"`
	Notice      Notice     `json:"notice"`
	Study       StudyState `json:"study_state"`
	StudyTime   uint8      `json:"study_time"`

	// Content 原始内容区，供模式/档位命令读-改-写
	Content Content `json:"-"`
}

// 字节3标志位
const (
	b3AltMask    = 0x07
	b3Launch     = 1 << 0
	b3AntiSlip   = 1 << 1
	b3Valet      = 1 << 2
	b3SL         = 1 << 3
	b3SupportsSL = 1 << 4
	b3AT         = 1 << 7
)

// 字节9提示位
const (
	b9C1 = 1 << 2
	b9C2 = 1 << 3
	b9C3 = 1 << 4
)

// DecodeStatus 解析 0x02 状态帧内容。纯函数，结果由调用方保存
func DecodeStatus(f *Frame) (*StatusSnapshot, error) {
	if f == nil || f.Type != TypeStatus {
		return nil, ErrNotStatus
	}
	c := f.Content
	s := &StatusSnapshot{Mode: ModeUnknown, Content: c}

	s.AT = c[3]&b3AT != 0
	s.SupportsSL = c[3]&b3SupportsSL != 0
	s.Mode = decodeMode(c, s)

	s.DeepCX = c[4]
	s.DeepSC = c[5]

	switch hi, lo := c[6]>>4, c[6]&0x0F; {
	case hi == 1:
		s.Study = StudyActive
		s.StudyTime = lo
	case hi > 1:
		if lo == 0 {
			s.Study = StudyOff
		} else {
			s.Study = StudyOther
		}
	}

	s.VersionRaw = c[7]
	s.Locked = c[8] == 0

	switch {
	case c[9]&b9C1 != 0:
		s.Notice = NoticeC1
	case c[9]&b9C2 != 0:
		s.Notice = NoticeC2
	case c[9]&b9C3 != 0:
		s.Notice = NoticeC3
	}
	return s, nil
}

// decodeMode 字节3低3位为0时按字节0取主模式（同时填充该模式档位），
// 否则按 Launch > Anti-Slip > Valet > SL 顺序取第一个命中的标志位
func decodeMode(c Content, s *StatusSnapshot) SpeedMode {
	b3 := c[3]
	if b3&b3AltMask == 0 {
		switch SpeedMode(c[0]) {
		case ModeEconomy:
			s.StepEconomy = c[1] & 0x0F
			return ModeEconomy
		case ModeNormal:
			return ModeNormal
		case ModeCruise:
			s.StepCruise = c[1] >> 4
			return ModeCruise
		case ModeSport:
			s.StepSport = c[2] & 0x0F
			return ModeSport
		case ModeHikeIT:
			s.StepHike = c[2] >> 4
			return ModeHikeIT
		case ModeAuto:
			return ModeAuto
		}
		return ModeUnknown
	}
	switch {
	case b3&b3Launch != 0:
		return ModeLaunch
	case b3&b3AntiSlip != 0:
		return ModeAntiSlip
	case b3&b3Valet != 0:
		return ModeValet
	case b3&b3SL != 0:
		// 低3位非零时前三个分支必有一个命中，此分支不可达，保持固件的判定顺序
		return ModeSL
	}
	return ModeUnknown
}

// Version 固件版本，原始字节 / 10，保留一位小数
func (s *StatusSnapshot) Version() string {
	return fmt.Sprintf("V%.1f", float64(s.VersionRaw)/10.0)
}

// Step 当前模式的档位；无档位模式返回 false
func (s *StatusSnapshot) Step() (uint8, bool) {
	switch s.Mode {
	case ModeEconomy:
		return s.StepEconomy, true
	case ModeCruise:
		return s.StepCruise, true
	case ModeSport:
		return s.StepSport, true
	case ModeHikeIT:
		return s.StepHike, true
	}
	return 0, false
}

func (s *StatusSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s steps(eco=%d cruise=%d sport=%d hike=%d) deep(cx=%d sc=%d) %s locked=%t at=%t",
		s.Mode, s.StepEconomy, s.StepCruise, s.StepSport, s.StepHike, s.DeepCX, s.DeepSC, s.Version(), s.Locked, s.AT)
	if s.Notice != NoticeNone {
		fmt.Fprintf(&b, " notice=%s", s.Notice)
	}
	fmt.Fprintf(&b, " study=%s/%d", s.Study, s.StudyTime)
	return b.String()
}
