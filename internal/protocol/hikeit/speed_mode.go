package hikeit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SpeedMode 速度模式。0-5 由内容字节0编码，6-9 由字节3的标志位编码
type SpeedMode uint8

const (
	ModeEconomy  SpeedMode = 0
	ModeNormal   SpeedMode = 1
	ModeCruise   SpeedMode = 2
	ModeSport    SpeedMode = 3
	ModeHikeIT   SpeedMode = 4
	ModeAuto     SpeedMode = 5
	ModeLaunch   SpeedMode = 6
	ModeAntiSlip SpeedMode = 7
	ModeValet    SpeedMode = 8
	ModeSL       SpeedMode = 9

	ModeUnknown SpeedMode = 0xFF
)

var modeNames = map[SpeedMode]string{
	ModeEconomy:  "economy",
	ModeNormal:   "normal",
	ModeCruise:   "cruise",
	ModeSport:    "sport",
	ModeHikeIT:   "hike_it",
	ModeAuto:     "auto",
	ModeLaunch:   "launch",
	ModeAntiSlip: "anti_slip",
	ModeValet:    "valet",
	ModeSL:       "sl",
}

func (m SpeedMode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return "unknown"
}

// MarshalText JSON 输出模式名而非字节值；YAML 标签表仍按数字读取
func (m SpeedMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseSpeedMode 按 String() 名称解析（大小写不敏感）
func ParseSpeedMode(s string) (SpeedMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return ModeUnknown, fmt.Errorf("unknown speed mode %q", s)
}

// Primary 是否为字节0直接编码的主模式
func (m SpeedMode) Primary() bool { return m <= ModeAuto }

// HasStep 仅经济/巡航/运动/HikeIT 四种模式有档位
func (m SpeedMode) HasStep() bool {
	switch m {
	case ModeEconomy, ModeCruise, ModeSport, ModeHikeIT:
		return true
	}
	return false
}

// LabelEntry 标签与模式的一项映射
type LabelEntry struct {
	Label string    `yaml:"label"`
	Mode  SpeedMode `yaml:"mode"`
}

// LabelSet 有序的模式标签表，不同配置变体使用不同标签
type LabelSet struct {
	Name    string       `yaml:"name"`
	Entries []LabelEntry `yaml:"entries"`
}

// StandardLabels 10项标签（bleak 脚本变体）
func StandardLabels() *LabelSet {
	return &LabelSet{Name: "standard", Entries: []LabelEntry{
		{"Economy", ModeEconomy},
		{"Normal", ModeNormal},
		{"Cruise", ModeCruise},
		{"Sport", ModeSport},
		{"Hike IT", ModeHikeIT},
		{"Auto", ModeAuto},
		{"Launch", ModeLaunch},
		{"Anti-Slip", ModeAntiSlip},
		{"Valet", ModeValet},
		{"SL", ModeSL},
	}}
}

// ESPHomeLabels 9项标签（ESPHome 组件变体，不含 SL）
func ESPHomeLabels() *LabelSet {
	return &LabelSet{Name: "esphome", Entries: []LabelEntry{
		{"Eco 4x4", ModeEconomy},
		{"Off", ModeNormal},
		{"Cruise", ModeCruise},
		{"Sport", ModeSport},
		{"Hike IT", ModeHikeIT},
		{"Auto", ModeAuto},
		{"Launch", ModeLaunch},
		{"Anti-Slip", ModeAntiSlip},
		{"Valet", ModeValet},
	}}
}

// BuiltinLabels 按名称获取内置变体
func BuiltinLabels(name string) (*LabelSet, error) {
	switch strings.ToLower(name) {
	case "", "standard":
		return StandardLabels(), nil
	case "esphome":
		return ESPHomeLabels(), nil
	}
	return nil, fmt.Errorf("unknown speed label set %q", name)
}

// LoadLabelSet 从 YAML 文件加载标签表
func LoadLabelSet(path string) (*LabelSet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label set: %w", err)
	}
	var ls LabelSet
	if err := yaml.Unmarshal(b, &ls); err != nil {
		return nil, fmt.Errorf("unmarshal label set: %w", err)
	}
	if err := ls.Validate(); err != nil {
		return nil, err
	}
	return &ls, nil
}

// Validate 标签非空、不重复，模式在已知范围内
func (ls *LabelSet) Validate() error {
	if ls == nil || len(ls.Entries) == 0 {
		return fmt.Errorf("label set is empty")
	}
	seen := make(map[string]bool, len(ls.Entries))
	for _, e := range ls.Entries {
		if e.Label == "" {
			return fmt.Errorf("label set %q: empty label", ls.Name)
		}
		if _, ok := modeNames[e.Mode]; !ok {
			return fmt.Errorf("label set %q: label %q has unknown mode %d", ls.Name, e.Label, e.Mode)
		}
		if seen[e.Label] {
			return fmt.Errorf("label set %q: duplicate label %q", ls.Name, e.Label)
		}
		seen[e.Label] = true
	}
	return nil
}

// Labels 有序标签列表（用作选择器选项）
func (ls *LabelSet) Labels() []string {
	out := make([]string, 0, len(ls.Entries))
	for _, e := range ls.Entries {
		out = append(out, e.Label)
	}
	return out
}

// Mode 标签 -> 模式
func (ls *LabelSet) Mode(label string) (SpeedMode, bool) {
	for _, e := range ls.Entries {
		if e.Label == label {
			return e.Mode, true
		}
	}
	return ModeUnknown, false
}

// Label 模式 -> 标签；变体中不存在的模式返回 false
func (ls *LabelSet) Label(m SpeedMode) (string, bool) {
	for _, e := range ls.Entries {
		if e.Mode == m {
			return e.Label, true
		}
	}
	return "", false
}
