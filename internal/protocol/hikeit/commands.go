package hikeit

// 所有构造函数都会从 FrameContext 取一个流水号（计数器+1，255 后回到 0）。
// 依赖状态的命令在取号之前完成校验，失败时不消耗流水号。

func build(fc FrameContext, typ MsgType, content Content) *Frame {
	return NewFrame(fc.NextSequence(), typ, content, fc.DeviceID())
}

func single(code byte) Content {
	var c Content
	c[0] = code
	return c
}

// BuildVerify 验证握手：连接 0x03，断开 0x04
func BuildVerify(fc FrameContext, connect bool) *Frame {
	if connect {
		return build(fc, TypeVerify, single(verifyConnect))
	}
	return build(fc, TypeVerify, single(verifyDisconnect))
}

// BuildStudyMode 进入学习模式
func BuildStudyMode(fc FrameContext) *Frame {
	return build(fc, TypeStudyMode, single(studyModeCode))
}

// BuildScreenCommand 屏幕命令
func BuildScreenCommand(fc FrameContext) *Frame {
	return build(fc, TypeScreen, single(screenCode))
}

// BuildModeCommand 切换速度模式。基于最近状态内容，仅改写字节0/3并清零字节4-6，
// 字节1/2/7/8/9（档位、版本、锁定、提示）保持不变
func BuildModeCommand(fc FrameContext, mode SpeedMode, at bool, current *Content) (*Frame, error) {
	if current == nil {
		return nil, ErrMissingStatus
	}
	c := *current
	switch {
	case mode.Primary():
		c[0] = byte(mode)
		c[3] = 0
	case mode == ModeLaunch:
		c[3] = b3Launch
	case mode == ModeAntiSlip:
		c[3] = b3AntiSlip
	default:
		// Valet 与 SL 共用同一编码
		c[3] = b3Valet
	}
	if at {
		c[3] |= b3AT
	}
	c[4], c[5], c[6] = 0, 0, 0
	return build(fc, TypeStatus, c), nil
}

// BuildStepCommand 调整档位：写入模式对应的4位半字节，其余位不动。
// step 只做下限截断；无档位模式原样回写内容
func BuildStepCommand(fc FrameContext, step int, mode SpeedMode, current *Content) (*Frame, error) {
	if current == nil {
		return nil, ErrMissingStatus
	}
	c := *current
	if !mode.HasStep() {
		return build(fc, TypeStatus, c), nil
	}
	v := byte(max(step, 0))
	switch mode {
	case ModeEconomy:
		c[1] = c[1]&0xF0 | v&0x0F
	case ModeCruise:
		c[1] = c[1]&0x0F | (v<<4)&0xF0
	case ModeSport:
		c[2] = c[2]&0xF0 | v&0x0F
	case ModeHikeIT:
		c[2] = c[2]&0x0F | (v<<4)&0xF0
	}
	return build(fc, TypeStatus, c), nil
}

// BuildAutoCommand 设置/清除 AT 标志（字节3 bit7），同时清除 bit6 并清零字节4-6
func BuildAutoCommand(fc FrameContext, enable bool, current *Content) (*Frame, error) {
	if current == nil {
		return nil, ErrMissingStatus
	}
	c := *current
	c[3] &= 0x3F
	if enable {
		c[3] |= b3AT
	}
	c[4], c[5], c[6] = 0, 0, 0
	return build(fc, TypeStatus, c), nil
}

// BuildSafeModeCommand 安全模式加锁(0x05)/解锁(0x06)，内容为两份交换后的 PIN
func BuildSafeModeCommand(fc FrameContext, pin string, lock bool) (*Frame, error) {
	p, err := EncodePIN(pin)
	if err != nil {
		return nil, err
	}
	var c Content
	c[0], c[1], c[2], c[3] = p[0], p[1], p[0], p[1]
	typ := TypeUnlock
	if lock {
		typ = TypeLock
	}
	return build(fc, typ, c), nil
}
