package hikeit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentinel 非模式字节填充已知值
var sentinel = Content{0x01, 0xA7, 0x5C, 0x10, 0x33, 0x44, 0x55, 0x2A, 0x01, 0x08}

func TestBuildVerify(t *testing.T) {
	fc := &fakeContext{id: DeviceID{1, 2, 3, 4}}

	f := BuildVerify(fc, true)
	assert.Equal(t, TypeVerify, f.Type)
	assert.Equal(t, Content{0x03}, f.Content)
	assert.Equal(t, uint8(0), f.Sequence)
	assert.Equal(t, DeviceID{1, 2, 3, 4}, f.DeviceID)
	assert.True(t, f.Valid())

	f = BuildVerify(fc, false)
	assert.Equal(t, Content{0x04}, f.Content)
	assert.Equal(t, uint8(1), f.Sequence)
}

func TestBuildStudyAndScreen(t *testing.T) {
	fc := &fakeContext{}
	f := BuildStudyMode(fc)
	assert.Equal(t, TypeStudyMode, f.Type)
	assert.Equal(t, Content{0x16}, f.Content)

	f = BuildScreenCommand(fc)
	assert.Equal(t, TypeScreen, f.Type)
	assert.Equal(t, Content{0x24}, f.Content)
	assert.Equal(t, uint8(2), fc.seq)
}

func TestSequenceWrapsAfter256Builds(t *testing.T) {
	fc := &fakeContext{seq: 0x42}
	seen := make(map[uint8]bool)
	for i := 0; i < 256; i++ {
		f := BuildScreenCommand(fc)
		seen[f.Sequence] = true
	}
	assert.Equal(t, uint8(0x42), fc.seq)
	assert.Len(t, seen, 256)
}

func TestBuildModeCommand_PreservesUnrelatedBytes(t *testing.T) {
	modes := []SpeedMode{ModeEconomy, ModeNormal, ModeCruise, ModeSport, ModeHikeIT, ModeAuto,
		ModeLaunch, ModeAntiSlip, ModeValet, ModeSL}
	for _, m := range modes {
		for _, at := range []bool{false, true} {
			cur := sentinel
			f, err := BuildModeCommand(&fakeContext{}, m, at, &cur)
			require.NoError(t, err)
			c := f.Content

			assert.Equal(t, TypeStatus, f.Type)
			for _, i := range []int{1, 2, 7, 8, 9} {
				assert.Equal(t, sentinel[i], c[i], "mode=%s byte%d", m, i)
			}
			assert.Zero(t, c[4])
			assert.Zero(t, c[5])
			assert.Zero(t, c[6])
			assert.Equal(t, at, c[3]&0x80 != 0)
			assert.Equal(t, sentinel, cur, "input content must not be mutated")
		}
	}
}

func TestBuildModeCommand_Encoding(t *testing.T) {
	tests := []struct {
		mode   SpeedMode
		at     bool
		b0, b3 byte
	}{
		{ModeEconomy, false, 0x00, 0x00},
		{ModeSport, true, 0x03, 0x80},
		{ModeAuto, false, 0x05, 0x00},
		{ModeLaunch, false, 0x01, 0x01},
		{ModeAntiSlip, true, 0x01, 0x82},
		{ModeValet, false, 0x01, 0x04},
		{ModeSL, false, 0x01, 0x04},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			cur := sentinel
			f, err := BuildModeCommand(&fakeContext{}, tt.mode, tt.at, &cur)
			require.NoError(t, err)
			assert.Equal(t, tt.b0, f.Content[0])
			assert.Equal(t, tt.b3, f.Content[3])

			s, err := DecodeStatus(f)
			require.NoError(t, err)
			if tt.mode != ModeSL {
				assert.Equal(t, tt.mode, s.Mode)
			}
		})
	}
}

func TestBuildModeCommand_MissingStatus(t *testing.T) {
	fc := &fakeContext{}
	f, err := BuildModeCommand(fc, ModeSport, false, nil)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrMissingStatus)
	assert.Equal(t, uint8(0), fc.seq, "rejected command must not consume a sequence number")
}

func TestBuildStepCommand(t *testing.T) {
	tests := []struct {
		name   string
		mode   SpeedMode
		step   int
		b1, b2 byte
	}{
		{"经济档", ModeEconomy, 3, 0xA3, 0x5C},
		{"巡航档", ModeCruise, 9, 0x97, 0x5C},
		{"运动档", ModeSport, 0, 0xA7, 0x50},
		{"HikeIT档", ModeHikeIT, 15, 0xA7, 0xFC},
		{"负数截断为0", ModeEconomy, -4, 0xA0, 0x5C},
		{"超出4位只保留低4位", ModeEconomy, 0x13, 0xA3, 0x5C},
		{"无档位模式不修改", ModeAuto, 7, 0xA7, 0x5C},
		{"Launch 不修改", ModeLaunch, 7, 0xA7, 0x5C},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := sentinel
			f, err := BuildStepCommand(&fakeContext{}, tt.step, tt.mode, &cur)
			require.NoError(t, err)
			assert.Equal(t, TypeStatus, f.Type)
			assert.Equal(t, tt.b1, f.Content[1])
			assert.Equal(t, tt.b2, f.Content[2])
			for _, i := range []int{0, 3, 4, 5, 6, 7, 8, 9} {
				assert.Equal(t, sentinel[i], f.Content[i], "byte%d", i)
			}
		})
	}

	_, err := BuildStepCommand(&fakeContext{}, 1, ModeEconomy, nil)
	assert.ErrorIs(t, err, ErrMissingStatus)
}

func TestBuildAutoCommand(t *testing.T) {
	cur := sentinel
	cur[3] = 0x52
	f, err := BuildAutoCommand(&fakeContext{}, true, &cur)
	require.NoError(t, err)
	assert.Equal(t, byte(0x92), f.Content[3])
	assert.Equal(t, Content{0x01, 0xA7, 0x5C, 0x92, 0, 0, 0, 0x2A, 0x01, 0x08}, f.Content)

	cur[3] = 0xC4
	f, err = BuildAutoCommand(&fakeContext{}, false, &cur)
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), f.Content[3])

	_, err = BuildAutoCommand(&fakeContext{}, true, nil)
	assert.ErrorIs(t, err, ErrMissingStatus)
}

func TestBuildSafeModeCommand(t *testing.T) {
	f, err := BuildSafeModeCommand(&fakeContext{}, "123", true)
	require.NoError(t, err)
	assert.Equal(t, TypeLock, f.Type)
	assert.Equal(t, "23012301000000000000", f.Content.Hex())
	assert.Equal(t, "AA55000523012301000000000000000000004D", f.Hex())

	f, err = BuildSafeModeCommand(&fakeContext{}, "9876", false)
	require.NoError(t, err)
	assert.Equal(t, TypeUnlock, f.Type)
	assert.Equal(t, "76987698000000000000", f.Content.Hex())

	f, err = BuildSafeModeCommand(&fakeContext{}, "5", true)
	require.NoError(t, err)
	assert.Equal(t, "05000500000000000000", f.Content.Hex())
}

func TestBuildSafeModeCommand_InvalidPin(t *testing.T) {
	for _, pin := range []string{"", "12345", "12a4", "-123", " 123", "１２３"} {
		fc := &fakeContext{}
		f, err := BuildSafeModeCommand(fc, pin, true)
		assert.Nil(t, f, "pin=%q", pin)
		assert.ErrorIs(t, err, ErrInvalidPin, "pin=%q", pin)
		assert.Equal(t, uint8(0), fc.seq)
	}
}
