package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hikeit-ble/internal/protocol/hikeit"
)

const dev = dbus.ObjectPath("/org/bluez/hci0/dev_C8_47_80_12_34_56")

func TestDevicePath(t *testing.T) {
	assert.Equal(t, dev, devicePath(adapterPath("hci0"), "c8:47:80:12:34:56"))
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1"), adapterPath("/org/bluez/hci1"))
}

func gattObjects() managedObjects {
	svc := dev + "/service000c"
	other := dev + "/service0001"
	return managedObjects{
		dev:   {deviceInterface: {"Name": dbus.MakeVariant("HIKE IT 01")}},
		other: {serviceInterface: {"UUID": dbus.MakeVariant("00001801-0000-1000-8000-00805f9b34fb")}},
		other + "/char0002": {charInterface: {
			"UUID":    dbus.MakeVariant(hikeit.CharacteristicUUID),
			"Service": dbus.MakeVariant(other),
		}},
		svc: {serviceInterface: {"UUID": dbus.MakeVariant(hikeit.ServiceUUID)}},
		svc + "/char000d": {charInterface: {
			"UUID":    dbus.MakeVariant("0000FFE1-0000-1000-8000-00805F9B34FB"),
			"Service": dbus.MakeVariant(svc),
		}},
	}
}

func TestFindCharacteristic(t *testing.T) {
	path, err := findCharacteristic(gattObjects(), dev, hikeit.ServiceUUID, hikeit.CharacteristicUUID)
	require.NoError(t, err)
	assert.Equal(t, dev+"/service000c/char000d", path)

	_, err = findCharacteristic(gattObjects(), dev, hikeit.ServiceUUID, "0000ffe2-0000-1000-8000-00805f9b34fb")
	assert.Error(t, err)

	_, err = findCharacteristic(managedObjects{}, dev, hikeit.ServiceUUID, hikeit.CharacteristicUUID)
	assert.ErrorContains(t, err, "no GATT services")
}

func TestNotificationValue(t *testing.T) {
	char := dev + "/service000c/char000d"
	payload := []byte{0xAA, 0x55}
	sig := &dbus.Signal{
		Path: char,
		Name: propsChanged,
		Body: []interface{}{charInterface, map[string]dbus.Variant{"Value": dbus.MakeVariant(payload)}, []string{}},
	}
	v, ok := notificationValue(sig, char)
	require.True(t, ok)
	assert.Equal(t, payload, v)

	_, ok = notificationValue(sig, dev+"/service000c/char000e")
	assert.False(t, ok)

	sig.Body[1] = map[string]dbus.Variant{"Notifying": dbus.MakeVariant(true)}
	_, ok = notificationValue(sig, char)
	assert.False(t, ok)
	assert.False(t, linkDropped(sig, dev))
}

func TestLinkDropped(t *testing.T) {
	sig := &dbus.Signal{
		Path: dev,
		Name: propsChanged,
		Body: []interface{}{deviceInterface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}, []string{}},
	}
	assert.True(t, linkDropped(sig, dev))

	sig.Body[1] = map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}
	assert.False(t, linkDropped(sig, dev))

	sig.Body[1] = map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-60))}
	assert.False(t, linkDropped(sig, dev))
}

func TestFilterDevices(t *testing.T) {
	adapter := adapterPath("hci0")
	objects := managedObjects{
		adapter + "/dev_01": {deviceInterface: {
			"Name": dbus.MakeVariant("HIKE IT A"), "Address": dbus.MakeVariant("01"), "RSSI": dbus.MakeVariant(int16(-80)),
		}},
		adapter + "/dev_02": {deviceInterface: {
			"Name": dbus.MakeVariant("HIKE IT B"), "Address": dbus.MakeVariant("02"), "RSSI": dbus.MakeVariant(int16(-40)),
		}},
		adapter + "/dev_03":      {deviceInterface: {"Name": dbus.MakeVariant("Headphones"), "Address": dbus.MakeVariant("03")}},
		"/org/bluez/hci1/dev_04": {deviceInterface: {"Name": dbus.MakeVariant("HIKE IT C"), "Address": dbus.MakeVariant("04")}},
	}
	got := filterDevices(objects, adapter, hikeit.ScanPrefix)
	require.Len(t, got, 2)
	assert.Equal(t, "02", got[0].Address)
	assert.Equal(t, "01", got[1].Address)
}
