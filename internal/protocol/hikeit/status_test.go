package hikeit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusFrame(c Content) *Frame { return NewFrame(0, TypeStatus, c, DeviceID{}) }

func TestDecodeStatus_EndToEndEconomy(t *testing.T) {
	f, err := Decode("AA550002000200000000000C01001234567825")
	require.NoError(t, err)

	s, err := DecodeStatus(f)
	require.NoError(t, err)
	assert.Equal(t, ModeEconomy, s.Mode)
	step, ok := s.Step()
	assert.True(t, ok)
	assert.Equal(t, uint8(2), step)
	assert.Equal(t, "V1.2", s.Version())
	assert.False(t, s.Locked)
	assert.Equal(t, NoticeNone, s.Notice)
}

func TestDecodeStatus_AllFields(t *testing.T) {
	f, err := Decode("AA550702035AC390070815210004DEADBEEF3A")
	require.NoError(t, err)
	s, err := DecodeStatus(f)
	require.NoError(t, err)

	assert.Equal(t, ModeSport, s.Mode)
	assert.Equal(t, uint8(3), s.StepSport)
	assert.Zero(t, s.StepEconomy, "only the active mode's step is decoded")
	assert.Zero(t, s.StepCruise)
	assert.Zero(t, s.StepHike)
	assert.True(t, s.AT)
	assert.True(t, s.SupportsSL)
	assert.Equal(t, uint8(7), s.DeepCX)
	assert.Equal(t, uint8(8), s.DeepSC)
	assert.Equal(t, StudyActive, s.Study)
	assert.Equal(t, uint8(5), s.StudyTime)
	assert.Equal(t, "V3.3", s.Version())
	assert.True(t, s.Locked)
	assert.Equal(t, NoticeC1, s.Notice)
	assert.Equal(t, f.Content, s.Content)
}

func TestDecodeStatus_PrimaryModes(t *testing.T) {
	tests := []struct {
		b0, b1, b2 byte
		mode       SpeedMode
		step       uint8
		hasStep    bool
	}{
		{0, 0xA7, 0x00, ModeEconomy, 7, true},
		{1, 0xFF, 0xFF, ModeNormal, 0, false},
		{2, 0xA7, 0x00, ModeCruise, 0x0A, true},
		{3, 0x00, 0x5C, ModeSport, 0x0C, true},
		{4, 0x00, 0x5C, ModeHikeIT, 5, true},
		{5, 0x11, 0x11, ModeAuto, 0, false},
		{6, 0x11, 0x11, ModeUnknown, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			s, err := DecodeStatus(statusFrame(Content{tt.b0, tt.b1, tt.b2}))
			require.NoError(t, err)
			assert.Equal(t, tt.mode, s.Mode)
			step, ok := s.Step()
			assert.Equal(t, tt.hasStep, ok)
			assert.Equal(t, tt.step, step)
		})
	}
}

func TestDecodeStatus_AlternateModePriority(t *testing.T) {
	tests := []struct {
		name string
		b3   byte
		want SpeedMode
	}{
		{"launch", 0x01, ModeLaunch},
		{"launch 优先于 anti-slip", 0x03, ModeLaunch},
		{"launch 优先于全部", 0x07, ModeLaunch},
		{"anti-slip", 0x02, ModeAntiSlip},
		{"anti-slip 优先于 valet", 0x06, ModeAntiSlip},
		{"valet", 0x04, ModeValet},
		{"valet 带 SL 位", 0x0C, ModeValet},
		{"仅 bit3 回落到字节0", 0x08, ModeCruise},
		{"AT 与 SL 支持位不影响主模式", 0x90, ModeCruise},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeStatus(statusFrame(Content{byte(ModeCruise), 0, 0, tt.b3}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Mode)
		})
	}
}

func TestDecodeStatus_Study(t *testing.T) {
	tests := []struct {
		b6    byte
		state StudyState
		time  uint8
	}{
		{0x00, StudyOff, 0},
		{0x0F, StudyOff, 0},
		{0x1A, StudyActive, 0x0A},
		{0x20, StudyOff, 0},
		{0x23, StudyOther, 0},
		{0xF1, StudyOther, 0},
	}
	for _, tt := range tests {
		s, err := DecodeStatus(statusFrame(Content{6: tt.b6, 8: 1}))
		require.NoError(t, err)
		assert.Equal(t, tt.state, s.Study, "b6=%02X", tt.b6)
		assert.Equal(t, tt.time, s.StudyTime, "b6=%02X", tt.b6)
	}
}

func TestDecodeStatus_NoticePriority(t *testing.T) {
	tests := []struct {
		b9   byte
		want Notice
	}{
		{0x00, NoticeNone},
		{0x04, NoticeC1},
		{0x1C, NoticeC1},
		{0x08, NoticeC2},
		{0x18, NoticeC2},
		{0x10, NoticeC3},
		{0xE3, NoticeNone},
	}
	for _, tt := range tests {
		s, err := DecodeStatus(statusFrame(Content{9: tt.b9}))
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Notice, "b9=%02X", tt.b9)
	}
}

func TestDecodeStatus_LockAndVersion(t *testing.T) {
	s, err := DecodeStatus(statusFrame(Content{7: 0x0F, 8: 0x00}))
	require.NoError(t, err)
	assert.True(t, s.Locked)
	assert.Equal(t, "V1.5", s.Version())

	s, err = DecodeStatus(statusFrame(Content{7: 0xFF, 8: 0x02}))
	require.NoError(t, err)
	assert.False(t, s.Locked)
	assert.Equal(t, "V25.5", s.Version())
}

func TestDecodeStatus_RejectsOtherTypes(t *testing.T) {
	_, err := DecodeStatus(NewFrame(0, TypeVerify, Content{1}, DeviceID{}))
	assert.ErrorIs(t, err, ErrNotStatus)
	_, err = DecodeStatus(nil)
	assert.ErrorIs(t, err, ErrNotStatus)
}

func TestStatusSnapshot_JSONNames(t *testing.T) {
	s := StatusSnapshot{Mode: ModeSport, StepSport: 2, Notice: NoticeC1, Study: StudyActive}
	b, err := json.Marshal(&s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "sport", got["mode"])
	assert.Equal(t, "C1", got["notice"])
	assert.Equal(t, "active", got["study_state"])
	assert.EqualValues(t, 2, got["step_sport"])

	b, err = json.Marshal(StatusSnapshot{})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mode":"economy"`)
	assert.Contains(t, string(b), `"notice":""`)
}
