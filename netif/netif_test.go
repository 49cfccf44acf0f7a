package netif

import (
	"errors"
	"net"
	"strings"
	"testing"

	psnet "github.com/shirou/gopsutil/v3/net"
)

func fakeList(list psnet.InterfaceStatList, err error) func() (psnet.InterfaceStatList, error) {
	return func() (psnet.InterfaceStatList, error) { return list, err }
}

func TestInterfaceIfConfig(t *testing.T) {
	list := psnet.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		{Name: "eth0", Flags: []string{"up", "broadcast"}, Addrs: psnet.InterfaceAddrList{
			{Addr: "fe80::1/64"},
			{Addr: "192.168.1.10/24"},
		}},
		{Name: "wlan0", Flags: []string{"broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "10.0.0.2/8"}}},
		{Name: "tun0", Flags: []string{"up"}, Addrs: psnet.InterfaceAddrList{{Addr: "fe80::2/64"}}},
	}

	i := &Interface{Name: "eth0", list: fakeList(list, nil)}
	ip, err := i.IfConfig()
	if err != nil {
		t.Fatalf("读取地址失败: %v", err)
	}
	if !ip.Equal(net.IPv4(192, 168, 1, 10)) {
		t.Errorf("地址错误: %v", ip)
	}

	if _, err := (&Interface{Name: "wlan0", list: fakeList(list, nil)}).IfConfig(); err == nil || !strings.Contains(err.Error(), "未启用") {
		t.Errorf("未启用的网卡应返回错误: %v", err)
	}
	if _, err := (&Interface{Name: "tun0", list: fakeList(list, nil)}).IfConfig(); !errors.Is(err, ErrNoAddress) {
		t.Errorf("没有 IPv4 的网卡应返回 ErrNoAddress: %v", err)
	}
	if _, err := (&Interface{Name: "eth9", list: fakeList(list, nil)}).IfConfig(); err == nil {
		t.Errorf("不存在的网卡应返回错误")
	}
	if _, err := (&Interface{Name: "eth0", list: fakeList(nil, errors.New("boom"))}).IfConfig(); err == nil {
		t.Errorf("列表读取失败应返回错误")
	}
}

func TestParseStatic(t *testing.T) {
	s, err := ParseStatic("10.1.2.3")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if ip, _ := s.IfConfig(); !ip.Equal(net.IPv4(10, 1, 2, 3)) {
		t.Errorf("地址错误: %v", ip)
	}

	s, err = ParseStatic("")
	if err != nil {
		t.Fatalf("空地址不应报错: %v", err)
	}
	if ip, _ := s.IfConfig(); ip != nil {
		t.Errorf("空地址应返回 nil: %v", ip)
	}

	if _, err := ParseStatic("not-an-ip"); err == nil {
		t.Errorf("非法地址应报错")
	}
}
