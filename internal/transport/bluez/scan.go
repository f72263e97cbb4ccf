package bluez

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
)

// Device 扫描结果
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int16  `json:"rssi"`
}

// Scan 开启 LE 扫描一段时间，返回名称以 HIKE 开头的设备（按信号强度降序）
func (t *Transport) Scan(ctx context.Context, d time.Duration) ([]Device, error) {
	t.mu.Lock()
	conn, err := t.bus()
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	adapter := conn.Object(busName, adapterPath(t.cfg.Adapter))

	filter := map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": false,
	}
	if err := adapter.CallWithContext(ctx, adapterInterface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		// 部分适配器不支持过滤器
		t.log.Debug("set discovery filter", zap.Error(err))
	}
	if err := adapter.CallWithContext(ctx, adapterInterface+".StartDiscovery", 0).Err; err != nil {
		return nil, fmt.Errorf("start discovery: %w", err)
	}
	defer func() {
		if err := adapter.Call(adapterInterface+".StopDiscovery", 0).Err; err != nil {
			t.log.Debug("stop discovery", zap.Error(err))
		}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	var objects managedObjects
	if err := conn.Object(busName, "/").CallWithContext(ctx, managedObjectsFn, 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return filterDevices(objects, adapterPath(t.cfg.Adapter), hikeit.ScanPrefix), nil
}

func filterDevices(objects managedObjects, adapter dbus.ObjectPath, prefix string) []Device {
	var out []Device
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), string(adapter)+"/dev_") {
			continue
		}
		props, ok := ifaces[deviceInterface]
		if !ok {
			continue
		}
		name := variantString(props["Name"])
		if !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix)) {
			continue
		}
		d := Device{Address: variantString(props["Address"]), Name: name}
		if v, ok := props["RSSI"]; ok {
			d.RSSI, _ = v.Value().(int16)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RSSI > out[j].RSSI })
	return out
}
