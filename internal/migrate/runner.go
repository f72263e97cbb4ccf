package migrate

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

// Runner 迁移执行器。FS 为空时从 Dir 读取
type Runner struct {
	FS     fs.FS
	Dir    string
	Logger *zap.Logger
}

// Embedded 使用随二进制打包的迁移脚本
func Embedded(logger *zap.Logger) Runner {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return Runner{FS: sub, Logger: logger}
}

// EnsureTable 保证 schema_migrations 表存在
func EnsureTable(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`)
	return err
}

// AppliedVersions 已应用版本
func AppliedVersions(ctx context.Context, db *pgxpool.Pool) (map[int64]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res[v] = true
	}
	return res, rows.Err()
}

type migrationFile struct {
	Version int64
	Path    string
}

func (r Runner) source() (fs.FS, error) {
	if r.FS != nil {
		return r.FS, nil
	}
	if r.Dir == "" {
		return nil, errors.New("migrations dir is empty")
	}
	return os.DirFS(r.Dir), nil
}

// discoverUpMigrations 扫描 *_up.sql 按版本排序
func discoverUpMigrations(fsys fs.FS) ([]migrationFile, error) {
	var files []migrationFile
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := path.Base(p)
		if !strings.HasSuffix(name, "_up.sql") {
			return nil
		}
		// 前缀数字作为版本
		prefix, _, _ := strings.Cut(name, "_")
		ver, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return nil
		}
		files = append(files, migrationFile{Version: ver, Path: p})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// Up 执行未应用的向上迁移，返回本次应用的数量
func (r Runner) Up(ctx context.Context, db *pgxpool.Pool) (int, error) {
	fsys, err := r.source()
	if err != nil {
		return 0, err
	}
	if err := EnsureTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}
	ups, err := discoverUpMigrations(fsys)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range ups {
		if applied[m.Version] {
			continue
		}
		content, err := fs.ReadFile(fsys, m.Path)
		if err != nil {
			return n, err
		}
		// 在事务中执行
		tx, err := db.Begin(ctx)
		if err != nil {
			return n, err
		}
		_, execErr := tx.Exec(ctx, string(content))
		if execErr == nil {
			_, execErr = tx.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1,$2)`, m.Version, time.Now())
		}
		if execErr != nil {
			_ = tx.Rollback(ctx)
			return n, execErr
		}
		if err := tx.Commit(ctx); err != nil {
			return n, err
		}
		n++
		if r.Logger != nil {
			r.Logger.Info("migration applied", zap.Int64("version", m.Version), zap.String("file", m.Path))
		}
	}
	return n, nil
}
