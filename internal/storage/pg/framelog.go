package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FrameRecord 帧日志一行
type FrameRecord struct {
	SessionID string    `json:"session_id"`
	Direction string    `json:"direction"`
	MsgType   uint8     `json:"msg_type"`
	Sequence  uint8     `json:"seq"`
	Raw       string    `json:"raw"`
	At        time.Time `json:"at"`
}

// SessionRecord 一次 BLE 连接
type SessionRecord struct {
	ID         string     `json:"id"`
	Address    string     `json:"address"`
	DeviceID   string     `json:"device_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// FrameLog 帧与会话审计日志（只写入，不参与会话状态恢复）
type FrameLog struct {
	Pool *pgxpool.Pool
}

func parseSessionID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

// InsertFrames 批量写入帧记录
func (r *FrameLog) InsertFrames(ctx context.Context, frames []FrameRecord) error {
	if len(frames) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(frames))
	for _, f := range frames {
		rows = append(rows, []any{parseSessionID(f.SessionID), f.Direction, int16(f.MsgType), int16(f.Sequence), f.Raw, f.At})
	}
	_, err := r.Pool.CopyFrom(ctx,
		pgx.Identifier{"frame_log"},
		[]string{"session_id", "direction", "msg_type", "seq", "raw", "created_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy frame_log: %w", err)
	}
	return nil
}

// StartSession 记录连接开始
func (r *FrameLog) StartSession(ctx context.Context, s SessionRecord) error {
	id := parseSessionID(s.ID)
	if id == nil {
		return fmt.Errorf("invalid session id %q", s.ID)
	}
	const q = `INSERT INTO ble_sessions (id, address, started_at) VALUES ($1, $2, $3)
               ON CONFLICT (id) DO NOTHING`
	_, err := r.Pool.Exec(ctx, q, *id, s.Address, s.StartedAt)
	return err
}

// MarkVerified 记录验证通过时间与设备ID
func (r *FrameLog) MarkVerified(ctx context.Context, sessionID, deviceID string, at time.Time) error {
	const q = `UPDATE ble_sessions SET verified_at = $2, device_id = NULLIF($3, '') WHERE id = $1`
	_, err := r.Pool.Exec(ctx, q, parseSessionID(sessionID), at, deviceID)
	return err
}

// EndSession 记录连接结束
func (r *FrameLog) EndSession(ctx context.Context, sessionID string, at time.Time) error {
	const q = `UPDATE ble_sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`
	_, err := r.Pool.Exec(ctx, q, parseSessionID(sessionID), at)
	return err
}

// RecentFrames 最近的帧记录，sessionID 为空时不过滤
func (r *FrameLog) RecentFrames(ctx context.Context, sessionID string, limit int) ([]FrameRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT COALESCE(session_id::text, ''), direction, msg_type, seq, raw, created_at
               FROM frame_log
               WHERE ($1::uuid IS NULL OR session_id = $1)
               ORDER BY id DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, parseSessionID(sessionID), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (FrameRecord, error) {
		var f FrameRecord
		var typ, seq int16
		err := row.Scan(&f.SessionID, &f.Direction, &typ, &seq, &f.Raw, &f.At)
		f.MsgType, f.Sequence = uint8(typ), uint8(seq)
		return f, err
	})
}

// RecentSessions 最近的会话
func (r *FrameLog) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	const q = `SELECT id::text, address, COALESCE(device_id, ''), started_at, verified_at, ended_at
               FROM ble_sessions ORDER BY started_at DESC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionRecord, error) {
		var s SessionRecord
		err := row.Scan(&s.ID, &s.Address, &s.DeviceID, &s.StartedAt, &s.VerifiedAt, &s.EndedAt)
		return s, err
	})
}
