package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
)

const (
	busName           = "org.bluez"
	adapterInterface  = "org.bluez.Adapter1"
	deviceInterface   = "org.bluez.Device1"
	serviceInterface  = "org.bluez.GattService1"
	charInterface     = "org.bluez.GattCharacteristic1"
	propsInterface    = "org.freedesktop.DBus.Properties"
	propsChanged      = "org.freedesktop.DBus.Properties.PropertiesChanged"
	managedObjectsFn  = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	resolvePollPeriod = 200 * time.Millisecond
)

// ErrNoAddress 未配置设备地址
var ErrNoAddress = errors.New("bluez: device address not set")

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Config BlueZ 传输参数
type Config struct {
	Adapter            string // hci0
	Address            string // AA:BB:CC:DD:EE:FF
	ServiceUUID        string
	CharacteristicUUID string
}

// Transport 经 BlueZ D-Bus 接口访问 HIKE IT 的通知/写入特征值
type Transport struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	conn       *dbus.Conn
	address    string
	devicePath dbus.ObjectPath
	charPath   dbus.ObjectPath
	signals    chan *dbus.Signal
	stop       chan struct{}
	onLost     func()
	closing    bool
}

func New(cfg Config, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Adapter == "" {
		cfg.Adapter = "hci0"
	}
	return &Transport{cfg: cfg, log: logger, address: cfg.Address}
}

// SetAddress 更新目标地址，下次连接生效
func (t *Transport) SetAddress(addr string) {
	t.mu.Lock()
	t.address = strings.ToUpper(strings.TrimSpace(addr))
	t.mu.Unlock()
}

// Address 当前目标地址
func (t *Transport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.address
}

// SetLinkLostHandler 链路意外断开时回调（主动 Close 不触发）
func (t *Transport) SetLinkLostHandler(fn func()) {
	t.mu.Lock()
	t.onLost = fn
	t.mu.Unlock()
}

func (t *Transport) bus() (*dbus.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	t.conn = conn
	return conn, nil
}

// Connect 连接设备、等待服务解析、定位特征值并开启通知
func (t *Transport) Connect(ctx context.Context, notify func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.address == "" {
		return ErrNoAddress
	}
	conn, err := t.bus()
	if err != nil {
		return err
	}
	t.devicePath = devicePath(adapterPath(t.cfg.Adapter), t.address)
	t.closing = false
	dev := conn.Object(busName, t.devicePath)

	t.log.Info("ble connecting", zap.String("address", t.address), zap.String("path", string(t.devicePath)))
	if err := dev.CallWithContext(ctx, deviceInterface+".Connect", 0).Err; err != nil {
		if !strings.Contains(err.Error(), "AlreadyConnected") {
			return fmt.Errorf("device connect: %w", err)
		}
	}
	if err := waitResolved(ctx, dev); err != nil {
		return err
	}

	var objects managedObjects
	if err := conn.Object(busName, "/").CallWithContext(ctx, managedObjectsFn, 0).Store(&objects); err != nil {
		return fmt.Errorf("get managed objects: %w", err)
	}
	charPath, err := findCharacteristic(objects, t.devicePath, t.serviceUUID(), t.charUUID())
	if err != nil {
		return err
	}
	t.charPath = charPath

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace(t.devicePath),
	); err != nil {
		return fmt.Errorf("add match: %w", err)
	}
	t.signals = make(chan *dbus.Signal, 64)
	conn.Signal(t.signals)
	t.stop = make(chan struct{})

	if err := conn.Object(busName, charPath).CallWithContext(ctx, charInterface+".StartNotify", 0).Err; err != nil {
		t.releaseSignals()
		return fmt.Errorf("start notify: %w", err)
	}

	go t.watch(t.signals, t.stop, t.devicePath, charPath, notify)
	t.log.Info("ble connected", zap.String("characteristic", string(charPath)))
	return nil
}

func (t *Transport) serviceUUID() string {
	if t.cfg.ServiceUUID != "" {
		return t.cfg.ServiceUUID
	}
	return hikeit.ServiceUUID
}

func (t *Transport) charUUID() string {
	if t.cfg.CharacteristicUUID != "" {
		return t.cfg.CharacteristicUUID
	}
	return hikeit.CharacteristicUUID
}

func waitResolved(ctx context.Context, dev dbus.BusObject) error {
	ticker := time.NewTicker(resolvePollPeriod)
	defer ticker.Stop()
	for {
		var resolved bool
		err := dev.CallWithContext(ctx, propsInterface+".Get", 0, deviceInterface, "ServicesResolved").Store(&resolved)
		if err == nil && resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait services resolved: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// watch 分发特征值通知并监测 Connected=false
func (t *Transport) watch(signals <-chan *dbus.Signal, stop <-chan struct{}, dev, char dbus.ObjectPath, notify func([]byte)) {
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if value, ok := notificationValue(sig, char); ok {
				notify(value)
				continue
			}
			if linkDropped(sig, dev) {
				t.mu.Lock()
				lost, closing := t.onLost, t.closing
				t.mu.Unlock()
				if !closing && lost != nil {
					t.log.Warn("ble link dropped", zap.String("path", string(dev)))
					lost()
				}
				return
			}
		}
	}
}

// Write 写入特征值
func (t *Transport) Write(ctx context.Context, b []byte) error {
	t.mu.Lock()
	conn, char := t.conn, t.charPath
	t.mu.Unlock()
	if conn == nil || char == "" {
		return errors.New("bluez: characteristic not ready")
	}
	opts := map[string]interface{}{}
	if err := conn.Object(busName, char).CallWithContext(ctx, charInterface+".WriteValue", 0, b, opts).Err; err != nil {
		return fmt.Errorf("write value: %w", err)
	}
	return nil
}

// Close 停止通知并断开设备，可重复调用
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closing = true
	if t.conn == nil || t.devicePath == "" {
		return nil
	}
	if t.charPath != "" {
		if err := t.conn.Object(busName, t.charPath).CallWithContext(ctx, charInterface+".StopNotify", 0).Err; err != nil {
			t.log.Debug("stop notify", zap.Error(err))
		}
	}
	t.releaseSignals()
	err := t.conn.Object(busName, t.devicePath).CallWithContext(ctx, deviceInterface+".Disconnect", 0).Err
	t.charPath = ""
	t.devicePath = ""
	if err != nil {
		return fmt.Errorf("device disconnect: %w", err)
	}
	return nil
}

func (t *Transport) releaseSignals() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	if t.signals != nil {
		t.conn.RemoveSignal(t.signals)
		_ = t.conn.RemoveMatchSignal(
			dbus.WithMatchInterface(propsInterface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchPathNamespace(t.devicePath),
		)
		t.signals = nil
	}
}

// LinkUp 设备 Connected 属性，供健康检查使用
func (t *Transport) LinkUp(ctx context.Context) (bool, error) {
	t.mu.Lock()
	conn, dev := t.conn, t.devicePath
	t.mu.Unlock()
	if conn == nil || dev == "" {
		return false, nil
	}
	var connected bool
	if err := conn.Object(busName, dev).CallWithContext(ctx, propsInterface+".Get", 0, deviceInterface, "Connected").Store(&connected); err != nil {
		return false, fmt.Errorf("get connected: %w", err)
	}
	return connected, nil
}

func adapterPath(adapter string) dbus.ObjectPath {
	if strings.HasPrefix(adapter, "/") {
		return dbus.ObjectPath(adapter)
	}
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// devicePath /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF
func devicePath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_"))
}

// findCharacteristic 在设备下查找指定服务中的特征值
func findCharacteristic(objects managedObjects, dev dbus.ObjectPath, serviceUUID, charUUID string) (dbus.ObjectPath, error) {
	prefix := string(dev) + "/"
	services := 0
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if _, ok := ifaces[serviceInterface]; ok {
			services++
		}
		props, ok := ifaces[charInterface]
		if !ok || !strings.EqualFold(variantString(props["UUID"]), charUUID) {
			continue
		}
		svc, ok := props["Service"].Value().(dbus.ObjectPath)
		if !ok {
			continue
		}
		if svcProps, ok := objects[svc][serviceInterface]; ok && strings.EqualFold(variantString(svcProps["UUID"]), serviceUUID) {
			return path, nil
		}
	}
	if services == 0 {
		return "", fmt.Errorf("bluez: no GATT services under %s", dev)
	}
	return "", fmt.Errorf("bluez: characteristic %s not found in service %s", charUUID, serviceUUID)
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

// notificationValue 从 PropertiesChanged 中取出特征值 Value
func notificationValue(sig *dbus.Signal, char dbus.ObjectPath) ([]byte, bool) {
	if sig == nil || sig.Name != propsChanged || sig.Path != char || len(sig.Body) < 2 {
		return nil, false
	}
	if iface, _ := sig.Body[0].(string); iface != charInterface {
		return nil, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, false
	}
	v, ok := changed["Value"]
	if !ok {
		return nil, false
	}
	b, ok := v.Value().([]byte)
	return b, ok
}

// linkDropped 设备 Connected 变为 false
func linkDropped(sig *dbus.Signal, dev dbus.ObjectPath) bool {
	if sig == nil || sig.Name != propsChanged || sig.Path != dev || len(sig.Body) < 2 {
		return false
	}
	if iface, _ := sig.Body[0].(string); iface != deviceInterface {
		return false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false
	}
	v, ok := changed["Connected"]
	if !ok {
		return false
	}
	connected, ok := v.Value().(bool)
	return ok && !connected
}
