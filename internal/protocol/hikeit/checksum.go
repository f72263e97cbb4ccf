package hikeit

// CalculateChecksum 累加校验：对 body 各字节求和取低8位（不含头部 AA55）
func CalculateChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// VerifyChecksum 重新计算并比对帧校验和
func VerifyChecksum(f *Frame) error {
	if f == nil {
		return ErrBadLength
	}
	if want := CalculateChecksum(f.body()); want != f.Checksum {
		return ErrChecksumMismatch
	}
	return nil
}
