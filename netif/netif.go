// Package netif 提供推流服务使用的网卡地址
package netif

import (
	"errors"
	"fmt"
	"net"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Static 固定地址
type Static struct {
	IP net.IP
}

// ParseStatic 解析 IP 字符串，空字符串表示监听全部地址
func ParseStatic(addr string) (Static, error) {
	if addr == "" {
		return Static{}, nil
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return Static{}, fmt.Errorf("无效的 IP 地址: %q", addr)
	}
	return Static{IP: ip}, nil
}

func (s Static) IfConfig() (net.IP, error) {
	return s.IP, nil
}

// Interface 按名称查找网卡，每次调用都读取当前地址（DHCP 续租后地址可能变化）
type Interface struct {
	Name string
	// 为 nil 时使用 gopsutil 读取系统网卡
	list func() (psnet.InterfaceStatList, error)
}

func ByName(name string) *Interface {
	return &Interface{Name: name, list: psnet.Interfaces}
}

var ErrNoAddress = errors.New("网卡没有可用的 IPv4 地址")

func (i *Interface) IfConfig() (net.IP, error) {
	list := i.list
	if list == nil {
		list = psnet.Interfaces
	}
	ifaces, err := list()
	if err != nil {
		return nil, fmt.Errorf("读取网卡列表失败: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Name != i.Name {
			continue
		}
		if !hasFlag(iface.Flags, "up") {
			return nil, fmt.Errorf("网卡 %s 未启用", i.Name)
		}
		if ip := firstIPv4(iface.Addrs); ip != nil {
			return ip, nil
		}
		return nil, fmt.Errorf("%s: %w", i.Name, ErrNoAddress)
	}
	return nil, fmt.Errorf("找不到网卡: %s", i.Name)
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

// firstIPv4 地址格式为 CIDR，如 192.168.1.10/24
func firstIPv4(addrs psnet.InterfaceAddrList) net.IP {
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a.Addr)
		if err != nil {
			ip = net.ParseIP(a.Addr)
		}
		if ip == nil {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}
